package models

import "time"

// Message senders.
const (
	SenderClient = "client"
	SenderAgency = "agency"
)

// Project represents the work the agency delivers to a client.
type Project struct {
	ID        string    `json:"id"`         // Unique identifier (UUID)
	ClientID  string    `json:"client_id"`  // Owner of the project
	Name      string    `json:"name"`       // Project name
	Status    string    `json:"status"`     // Free-form status, e.g. planning, in_progress, done
	Progress  int       `json:"progress"`   // Completion in percent
	CreatedAt time.Time `json:"created_at"` // Creation timestamp
}

// Milestone is a single ordered step of a project.
type Milestone struct {
	ID          string     `json:"id"`                     // Unique identifier (UUID)
	ProjectID   string     `json:"project_id"`             // Project the milestone belongs to
	Title       string     `json:"title"`                  // Milestone title
	Position    int        `json:"position"`               // Order within the project, starting at 1
	Completed   bool       `json:"completed"`              // Whether the milestone is done
	CompletedAt *time.Time `json:"completed_at,omitempty"` // When the milestone was completed
}

// Message is a portal message between a client and the agency.
type Message struct {
	ID        string    `json:"id"`         // Unique identifier (UUID)
	ClientID  string    `json:"client_id"`  // Client the conversation belongs to
	Sender    string    `json:"sender"`     // client or agency
	Body      string    `json:"body"`       // Message text
	CreatedAt time.Time `json:"created_at"` // Creation timestamp
}

// ProjectOverview bundles a project with its milestones.
type ProjectOverview struct {
	Project    Project     `json:"project"`
	Milestones []Milestone `json:"milestones"`
}
