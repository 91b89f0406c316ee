package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"gigpay-bend/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

// maxBody bounds request bodies read by DecodeReq and ReadBody
const maxBody = 1 << 20

// DecodeReq decodes a json request body into an interface
func DecodeReq(r *http.Request, model interface{}) error {
	b, err := ReadBody(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, model)
}

// ReadBody returns the raw request body and leaves a fresh reader in its
// place, so signature checks can see the exact bytes.
func ReadBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	r.Body = io.NopCloser(bytes.NewBuffer(b))
	return b, err
}

// HashToken returns an encrypted form of a secret token
func HashToken(token string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(token), 12)
	return string(bytes), err
}

// CheckTokenHash compares a plain token with a hash
func CheckTokenHash(token, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token))
	return err == nil
}

// RequestUserID returns the authenticated user set by the auth middleware
func RequestUserID(r *http.Request) (primitive.ObjectID, error) {
	v, _ := r.Context().Value(models.UserIDKey).(string)
	id, err := primitive.ObjectIDFromHex(v)
	if err != nil {
		return id, fmt.Errorf("%w: missing or invalid user id", models.ErrSecurity)
	}
	return id, nil
}
