package models

const (
	ResultSuccess = "SUCCESS"
	ResultError   = "ERROR"
)

type ResponseEnvelope struct {
	Result  string  `json:"result"`
	Message string  `json:"message"`
	Data    *string `json:"data"`
}

func SuccessEnvelope(message string, data string) ResponseEnvelope {
	return ResponseEnvelope{Result: ResultSuccess, Message: message, Data: &data}
}

// ErrorEnvelope always carries null data, partial results are never returned.
func ErrorEnvelope(message string) ResponseEnvelope {
	return ResponseEnvelope{Result: ResultError, Message: message}
}
