package domain

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is a single turn of a conversation. Order within a conversation is chronological.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatStage is a step of the per-request chat state machine.
type ChatStage string

const (
	StageReceived   ChatStage = "received"
	StageIngesting  ChatStage = "ingesting"
	StageRetrieving ChatStage = "retrieving"
	StageAugmenting ChatStage = "augmenting"
	StageGenerating ChatStage = "generating"
	StageResponding ChatStage = "responding"
	StageStreaming  ChatStage = "streaming"
	StageFailed     ChatStage = "failed"
)
