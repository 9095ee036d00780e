package transport

type CreateChatRequest struct {
	Title    string `json:"title"`
	Type     string `json:"type"`
	Priority int    `json:"priority"`
}

type CloseChatRequest struct {
	Reason string `json:"reason"`
}

type TransferChatRequest struct {
	OperatorID string `json:"operator_id"`
	Reason     string `json:"reason"`
}

type SendMessageRequest struct {
	Body string `json:"body"`
}

type OnboardOperatorRequest struct {
	UserID             string `json:"user_id"`
	DisplayName        string `json:"display_name"`
	Email              string `json:"email"`
	MaxConcurrentChats int    `json:"max_concurrent_chats"`
}

type ConnectRequest struct {
	ConnectionID string `json:"connection_id"`
}

type SetStatusRequest struct {
	Status string `json:"status"`
}

type UpdateCapacityRequest struct {
	MaxConcurrentChats int `json:"max_concurrent_chats"`
}

type SkillRequest struct {
	Skill string `json:"skill"`
}
