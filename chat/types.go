package chat

import (
	"time"

	"github.com/google/uuid"
)

// Question is one user query, kept for the audit trail together with the
// embedding it was retrieved with.
type Question struct {
	ID        uuid.UUID
	Text      string
	CreatedAt time.Time
}

// Evidence is one retrieved chunk that grounded the answer to a question,
// readable back through the sources endpoint.
type Evidence struct {
	ID         uuid.UUID
	QuestionID uuid.UUID
	Source     string
	Text       string
}
