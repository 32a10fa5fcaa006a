package serverutils

// Response is the envelope every HTTP endpoint returns.
type Response[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func SuccessResponse[T any](message string, data T) Response[T] {
	return Response[T]{
		Success: true,
		Message: message,
		Data:    data,
	}
}

func ErrorResponse(code string, message string) Response[any] {
	return Response[any]{
		Success: false,
		Message: message,
		Error:   code,
	}
}
