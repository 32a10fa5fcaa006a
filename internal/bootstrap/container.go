package bootstrap

import (
	"log"
	"time"

	"fingerprint-be/internal/config"
	"fingerprint-be/internal/controller"
	"fingerprint-be/internal/device"
	"fingerprint-be/internal/device/afis"
	"fingerprint-be/internal/handler"
	"fingerprint-be/internal/pkg/logger"
	"fingerprint-be/internal/service"
	"fingerprint-be/internal/storage"
	"fingerprint-be/internal/websocket"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type Container struct {
	// Controllers
	FingerprintController   controller.IFingerprintController
	ConfigurationController controller.IConfigurationController
	HealthController        controller.IHealthController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	// WebSockets & Notification
	NotificationHandler *handler.NotificationHandler
	WebSocketHub        *websocket.Hub

	// Device lifecycle (Exposed for main.go to close on shutdown)
	DeviceManager *device.Manager
}

func NewContainer(cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. Device Backend
	source, err := afis.NewDirSource(cfg.App.SampleSourceDir)
	if err != nil {
		log.Fatalf("[FATAL] Failed to open sample source %q: %v", cfg.App.SampleSourceDir, err)
	}
	dev := afis.NewSoftwareDevice(source, sysLogger)
	manager := device.NewManager(dev, sysLogger)
	manager.Initialize(
		cfg.Fingerprint.DeviceCheckRetries,
		time.Duration(cfg.Fingerprint.DeviceCheckDelayMs)*time.Millisecond,
		cfg.App.DeviceLibraries,
	)

	// 4. Settings Store (file-backed, hot-reloadable)
	cfgStore := config.NewStore(cfg.Fingerprint, cfg.App.ConfigFilePath, sysLogger)

	// 5. WebSocket Hub
	wsLogger := logger.NewIsolatedLogger(cfg.App.NotifyLogFilePath)
	wsHub := websocket.NewHub(wsLogger)
	go wsHub.Run()

	// 6. Services
	notifier := service.NewProgressNotifier(pubSub, service.ProgressTopic, sysLogger)
	consumerService := service.NewConsumerService(
		pubSub,
		service.ProgressTopic,
		wsHub,
		cfg.App.CallbackURL,
		wsLogger,
	)

	store := storage.NewStore(cfg.Fingerprint.TemplatePath, sysLogger)
	fingerprintService := service.NewFingerprintService(manager, store, cfgStore, notifier, sysLogger)

	// Handler
	notifHandler := handler.NewNotificationHandler(wsHub, wsLogger)

	// 7. Controllers
	return &Container{
		NotificationHandler:     notifHandler,
		WebSocketHub:            wsHub,
		ConsumerService:         consumerService,
		DeviceManager:           manager,
		FingerprintController:   controller.NewFingerprintController(fingerprintService),
		ConfigurationController: controller.NewConfigurationController(cfgStore, cfg.Fingerprint),
		HealthController:        controller.NewHealthController(fingerprintService),
	}
}
