package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeLocation MessageType = "location"
)

func (t MessageType) Valid() bool {
	return t == MessageTypeText || t == MessageTypeLocation
}

// Message is one chat entry of a trip room. Location is set only for
// MessageTypeLocation.
type Message struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TripID     primitive.ObjectID `json:"trip_id" bson:"trip_id" validate:"required"`
	Sequence   int64              `json:"sequence" bson:"sequence"`
	SenderID   primitive.ObjectID `json:"sender_id" bson:"sender_id" validate:"required"`
	ReceiverID primitive.ObjectID `json:"receiver_id" bson:"receiver_id" validate:"required"`
	Type       MessageType        `json:"type" bson:"type" default:"text"`
	Content    string             `json:"content" bson:"content"`
	Location   *MessageLocation   `json:"location,omitempty" bson:"location,omitempty"`
	Edited     bool               `json:"edited" bson:"edited"`
	EditedAt   *time.Time         `json:"edited_at,omitempty" bson:"edited_at,omitempty"`
	CreatedAt  time.Time          `json:"created_at" bson:"created_at"`
}

type MessageLocation struct {
	Latitude  float64 `json:"latitude" bson:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude" validate:"longitude"`
	Address   string  `json:"address,omitempty" bson:"address"`
}
