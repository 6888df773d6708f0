package domain

import "time"

// FetchRecord captures one HTTP exchange during a diagnostic run
type FetchRecord struct {
	RequestURL  string    `json:"requestUrl"`
	Status      int       `json:"status"`
	ContentType string    `json:"contentType,omitempty"`
	FinalURL    string    `json:"finalUrl"`
	ByteLength  int       `json:"byteLength"`
	Snippet     string    `json:"snippet,omitempty"`
	BotBlocked  bool      `json:"botBlocked"`
	FetchedAt   time.Time `json:"fetchedAt"`
}

// FetchRecorder receives every completed exchange while installed
type FetchRecorder func(FetchRecord)
