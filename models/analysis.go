package models

// CommonGround is one area both sides of a story agree on.
type CommonGround struct {
	Title       string `json:"title"`
	BulletPoint string `json:"bullet_point"`
}

// Insights contrasts left and right leaning coverage of a story.
type Insights struct {
	KeyTakeawayLeft  string         `json:"key_takeaway_left"`
	KeyTakeawayRight string         `json:"key_takeaway_right"`
	CommonGround     []CommonGround `json:"common_ground"`
}

// ChatMessage is one turn of a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatReply is the assistant answer plus suggested follow-up questions.
type ChatReply struct {
	Reply       string   `json:"reply"`
	Suggestions []string `json:"suggestions"`
}
