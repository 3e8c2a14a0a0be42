package push

// Registry endpoints shared by the device sync client and the registry service.
const (
	PathRegister   = "/api/fcm/register"
	PathUnregister = "/api/fcm/unregister"
	PathRefresh    = "/api/fcm/refresh"
)

// RegisterRequest is the body of POST /api/fcm/register.
type RegisterRequest struct {
	Token    string   `json:"token"`
	UserID   string   `json:"userId"`
	Platform Platform `json:"platform"`
}

// TokenRequest is the body of DELETE /api/fcm/unregister and PUT /api/fcm/refresh.
type TokenRequest struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}
