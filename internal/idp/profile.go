package idp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// UserProfile is the authenticated user as reported by the provider's
// users endpoint. Values are replaced wholesale, never mutated.
type UserProfile struct {
	ID              int64  `json:"id"`
	DisplayName     string `json:"display_name"`
	Email           string `json:"email"`
	ProfileImageURL string `json:"profile_image_url"`
}

// usersResponse is the envelope of GET /users
type usersResponse struct {
	Data []userResponse `json:"data"`
}

type userResponse struct {
	ID              userID `json:"id"`
	DisplayName     string `json:"display_name"`
	Email           string `json:"email"`
	ProfileImageURL string `json:"profile_image_url"`
}

// userID accepts both a JSON number and a numeric string; Helix sends the
// latter.
type userID int64

func (id *userID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user id %q", string(data))
	}
	*id = userID(n)
	return nil
}

func (u userResponse) profile() *UserProfile {
	return &UserProfile{
		ID:              int64(u.ID),
		DisplayName:     u.DisplayName,
		Email:           u.Email,
		ProfileImageURL: u.ProfileImageURL,
	}
}
