package model

import (
	"time"

	"github.com/google/uuid"
)

type ProposalStatus string

const (
	ProposalStatusSubmitted ProposalStatus = "SUBMITTED"
	ProposalStatusAccepted  ProposalStatus = "ACCEPTED"
	ProposalStatusRejected  ProposalStatus = "REJECTED"
	ProposalStatusWithdrawn ProposalStatus = "WITHDRAWN"
)

// Proposal предложение провайдера по запросу
type Proposal struct {
	ID          uuid.UUID      `json:"id"`
	RequestID   uuid.UUID      `json:"request_id"`
	ProviderID  uuid.UUID      `json:"provider_id"`
	Amount      Money          `json:"amount"`
	CoverLetter string         `json:"cover_letter"`
	Status      ProposalStatus `json:"status"`
	Auto        bool           `json:"auto"` // создано автоматически при принятии прямого запроса
	CreatedAt   time.Time      `json:"created_at"`
}
