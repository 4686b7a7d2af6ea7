package models

// EventKind is a closed enum of wire event types, replacing the dynamic
// "any"-payload schemas of the source system per the tagged-envelope design
// note: every inbound and outbound event carries a typed payload below.
type EventKind string

// Client -> server event kinds.
const (
	EvConnectionAck       EventKind = "connection:ack"
	EvSearchStart         EventKind = "search:start"
	EvSearchCancel        EventKind = "search:cancel"
	EvSearchSubscribeStat EventKind = "search:subscribe_stats"
	EvSearchUnsubStats    EventKind = "search:unsubscribe_stats"
	EvChatJoin            EventKind = "chat:join"
	EvChatLeave           EventKind = "chat:leave"
	EvChatMessage         EventKind = "chat:message"
	EvChatTyping          EventKind = "chat:typing"
	EvChatRead            EventKind = "chat:read"
	EvChatEnd             EventKind = "chat:end"
	EvChatRate            EventKind = "chat:rate"
	EvChatReport          EventKind = "chat:report"
	EvContactRequest      EventKind = "contact:request"
	EvContactRespond      EventKind = "contact:respond"
)

// Server -> client event kinds.
const (
	EvConnectionRecovered EventKind = "connection:recovered"
	EvSearchStatus        EventKind = "search:status"
	EvSearchMatched       EventKind = "search:matched"
	EvSearchExpired       EventKind = "search:expired"
	EvSearchStats         EventKind = "search:stats"
	EvChatMessageOut      EventKind = "chat:message"
	EvChatTypingOut       EventKind = "chat:typing"
	EvChatReadOut         EventKind = "chat:read"
	EvChatEnded           EventKind = "chat:ended"
	EvChatRated           EventKind = "chat:rated"
	EvChatReported        EventKind = "chat:reported"
	EvContactRequestOut   EventKind = "contact:request"
	EvContactStatus       EventKind = "contact:status"
	EvError               EventKind = "error"
)

// Envelope is the single wire shape for every event: a kind tag plus a
// kind-specific payload (always a concrete Go type, never interface{} at
// the business-logic boundary — only the transport layer marshals it to
// JSON's dynamically typed wire format).
type Envelope struct {
	Kind    EventKind   `json:"event"`
	Payload interface{} `json:"payload"`
}

// --- Inbound payloads ---

type SearchCriteria struct {
	Gender              string   `json:"gender"`
	Age                 int      `json:"age"`
	Rating              float64  `json:"rating"`
	DesiredGender       []string `json:"desiredGender"`
	DesiredAgeMin       int      `json:"desiredAgeMin"`
	DesiredAgeMax       int      `json:"desiredAgeMax"`
	MinAcceptableRating float64  `json:"minAcceptableRating"`
	UseGeolocation      bool     `json:"useGeolocation"`
	Location            *Point  `json:"location,omitempty"`
	MaxDistanceKm       float64  `json:"maxDistance"`
}

type SearchStartIn struct {
	Criteria SearchCriteria `json:"criteria"`
}

type ChatJoinIn struct {
	ChatID string `json:"chatId"`
}

type ChatLeaveIn struct {
	ChatID string `json:"chatId"`
}

type ChatMessageIn struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
}

type ChatTypingIn struct {
	ChatID string `json:"chatId"`
}

type ChatReadIn struct {
	ChatID    string `json:"chatId"`
	Timestamp int64  `json:"timestamp"`
}

type ChatEndIn struct {
	ChatID string `json:"chatId"`
	Reason string `json:"reason,omitempty"`
}

type ChatRateIn struct {
	ChatID  string `json:"chatId"`
	Score   int    `json:"score"`
	Comment string `json:"comment,omitempty"`
}

type ChatReportIn struct {
	ChatID string `json:"chatId"`
	Reason string `json:"reason"`
}

type ContactRequestIn struct {
	To     string `json:"to"`
	ChatID string `json:"chatId"`
}

type ContactRespondIn struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// --- Outbound payloads ---

type MatchedUserOut struct {
	TelegramID string `json:"telegramId"`
	Gender     string `json:"gender"`
	Age        int    `json:"age"`
	ChatID     string `json:"chatId"`
}

type SearchMatchedOut struct {
	MatchedUser MatchedUserOut `json:"matchedUser"`
}

type SearchStatusOut struct {
	Status string `json:"status"`
}

type ChatMessageOut struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
	UserID  string `json:"userId"`
}

type ChatTypingOut struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

type ChatReadOut struct {
	ChatID    string `json:"chatId"`
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

type ChatEndedOut struct {
	ChatID  string `json:"chatId"`
	EndedBy string `json:"endedBy"`
	Reason  string `json:"reason,omitempty"`
}

type ChatRatedOut struct {
	ChatID   string `json:"chatId"`
	RatedBy  string `json:"ratedBy"`
	Score    int    `json:"score"`
}

type ChatReportedOut struct {
	ChatID string `json:"chatId"`
}

type ContactRequestOut struct {
	From   string `json:"from"`
	ChatID string `json:"chatId"`
}

type ContactStatusOut struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type ErrorOut struct {
	Message string `json:"message"`
}
