package domain

import "fmt"

// Page is a crawled URL with its extracted text
type Page struct {
	URL  string
	Text string
}

// Chunk is a window of cleaned page text ready for embedding
type Chunk struct {
	BotID   string
	PageURL string
	Index   int
	Text    string
}

// RecordID returns the vector record id of the chunk
func (c Chunk) RecordID() string {
	return fmt.Sprintf("%s_%d", c.BotID, c.Index)
}
