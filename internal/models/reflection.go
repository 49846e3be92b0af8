package models

import "time"

// Reflection is a user's answer to a mindfulness prompt, as stored by the API.
type Reflection struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Website    string    `json:"website"`
	Reflection string    `json:"reflection"`
	AIResponse string    `json:"aiResponse"`
	Helpful    *bool     `json:"helpful"`
	Proceeded  bool      `json:"proceeded"`
	Timestamp  time.Time `json:"timestamp"`
	CreatedAt  time.Time `json:"createdAt"`
}

// CreateReflectionRequest is the body of POST /reflections.
type CreateReflectionRequest struct {
	UserID     string     `json:"userId" validate:"required,max=128"`
	Website    string     `json:"website" validate:"required,max=2048"`
	Reflection string     `json:"reflection" validate:"required,max=10000"`
	AIResponse string     `json:"aiResponse,omitempty" validate:"max=10000"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

// UpdateReflectionRequest is the body of PATCH /reflections/{userId}/{reflectionId}.
// Only the fields present in the body are applied.
type UpdateReflectionRequest struct {
	Helpful   *bool `json:"helpful,omitempty"`
	Proceeded *bool `json:"proceeded,omitempty"`
}

// Apply copies the provided fields onto r.
func (u UpdateReflectionRequest) Apply(r *Reflection) {
	if u.Helpful != nil {
		helpful := *u.Helpful
		r.Helpful = &helpful
	}
	if u.Proceeded != nil {
		r.Proceeded = *u.Proceeded
	}
}
