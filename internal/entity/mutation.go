package entity

import "time"

type MutationKind string

const (
	MutationAddLineItem    MutationKind = "line_item.added"
	MutationUpdateQuantity MutationKind = "line_item.updated"
	MutationUpdateMetadata MutationKind = "line_item.metadata_updated"
	MutationDeleteLineItem MutationKind = "line_item.deleted"
)

// Mutation is one journaled call against the remote cart.
type Mutation struct {
	ID        string       `json:"id"`
	CartID    string       `json:"cart_id"`
	LineID    string       `json:"line_id"`
	Kind      MutationKind `json:"kind"`
	Payload   string       `json:"payload"`
	Succeeded bool         `json:"succeeded"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

/*
Mysql Table

CREATE TABLE cart_mutations (
	id VARCHAR(36) PRIMARY KEY,
	cart_id VARCHAR(64) NOT NULL,
	line_id VARCHAR(64) NOT NULL,
	kind VARCHAR(40) NOT NULL,
	payload TEXT NOT NULL,
	succeeded BOOLEAN NOT NULL,
	error TEXT NOT NULL,
	created_at DATETIME(3) NOT NULL
);
*/
