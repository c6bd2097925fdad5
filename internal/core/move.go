package core

import (
	"errors"
	"time"
)

type MoveStatus string

const (
	MovePending MoveStatus = "pending"
	MoveApplied MoveStatus = "applied"
	MoveFailed  MoveStatus = "failed"
)

var ErrMoveNotFound = errors.New("move request not found")

// MoveRequest records the intent to put one work item into an iteration.
type MoveRequest struct {
	ID            string     `json:"id"`
	Organization  string     `json:"organization"`
	Project       string     `json:"project"`
	Team          string     `json:"team,omitempty"`
	WorkItemID    int        `json:"workItemId"`
	IterationID   string     `json:"iterationId"`
	IterationPath string     `json:"iterationPath"`
	Status        MoveStatus `json:"status"`
	Error         string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Credentials rebuilds the scope of the request with the given token.
func (m MoveRequest) Credentials(token string) Credentials {
	return Credentials{
		Organization: m.Organization,
		Project:      m.Project,
		Team:         m.Team,
		Token:        token,
	}
}

func (m MoveRequest) Done() bool {
	return m.Status == MoveApplied || m.Status == MoveFailed
}
