package store

// BotConfig is one bot's execution configuration, keyed by bot identity.
type BotConfig struct {
	BotID      int
	DeviceName string
	DeviceUDID string
	Locale     string
	BotType    string
	Enabled    bool
	// SessionHost/SessionPort override the automation server address for
	// this bot. Empty/zero means use the process default.
	SessionHost string
	SessionPort int
}

// Clip is one content unit assembled by the collection pipeline, keyed by
// the externally-issued clip identifier extracted from its share URL.
type Clip struct {
	ID         string
	URL        string
	Channel    string
	Likes      int
	Caption    string
	Locale     string
	Source     string // SourceRecommended or SourceSearched
	SearchTerm string // set only for SourceSearched
}

// ClipRecord is the durable projection of a Clip plus workflow state.
type ClipRecord struct {
	Clip
	Status          string
	CreatedAt       int64
	LastProcessedAt int64
}

// HistoryEntry is one append-only audit row.
type HistoryEntry struct {
	ID         int64
	ClipID     string
	StatusFrom string
	StatusTo   string
	Actor      string
	Message    string
	CreatedAt  int64
}

// InsertResult is the outcome of InsertRecord.
type InsertResult int

const (
	// InsertedNew means a record was created.
	InsertedNew InsertResult = iota
	// InsertedDuplicate means the identifier already existed; only the
	// like count and touch time were refreshed.
	InsertedDuplicate
)

func (r InsertResult) String() string {
	switch r {
	case InsertedNew:
		return "new"
	case InsertedDuplicate:
		return "duplicate"
	}
	return "unknown"
}
