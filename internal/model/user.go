package model

import "time"

type User struct {
	ID        string    `bson:"_id" json:"id"`
	PublicKey string    `bson:"publicKey" json:"publicKey"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}
