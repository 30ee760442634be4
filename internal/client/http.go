package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"cipherline/internal/domain"
)

// HTTP talks to the relay's account API.
type HTTP struct {
	Base string
	HTTP *http.Client
}

func NewHTTP(base string) *HTTP {
	return &HTTP{Base: strings.TrimRight(base, "/"), HTTP: http.DefaultClient}
}

// StatusError is a non-2xx API response.
type StatusError struct {
	Path    string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("relay %s: %d %s", e.Path, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("relay %s: %d %s", e.Path, e.Status, e.Message)
}

// Register creates an account bound to pub and returns its user ID.
func (c *HTTP) Register(username, password string, pub domain.Ed25519Public) (domain.UserID, error) {
	in := struct {
		Username  string `json:"username"`
		Password  string `json:"password"`
		PublicKey []byte `json:"publicKey"`
	}{username, password, pub[:]}
	var out struct {
		UserID string `json:"userId"`
	}
	if err := c.do(http.MethodPost, "/api/register", "", in, &out); err != nil {
		return "", err
	}
	return domain.UserID(out.UserID), nil
}

// Login exchanges credentials for a bearer token.
func (c *HTTP) Login(username, password string) (token string, id domain.UserID, err error) {
	in := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{username, password}
	var out struct {
		Token  string `json:"token"`
		UserID string `json:"userId"`
	}
	if err := c.do(http.MethodPost, "/api/login", "", in, &out); err != nil {
		return "", "", err
	}
	return out.Token, domain.UserID(out.UserID), nil
}

// FetchKey returns the registered signing key of id.
func (c *HTTP) FetchKey(token string, id domain.UserID) (domain.Ed25519Public, error) {
	var out struct {
		PublicKey []byte `json:"publicKey"`
	}
	if err := c.do(http.MethodGet, "/api/users/"+url.PathEscape(id.String())+"/key", token, nil, &out); err != nil {
		return domain.Ed25519Public{}, err
	}
	var pub domain.Ed25519Public
	if len(out.PublicKey) != len(pub) {
		return pub, fmt.Errorf("relay returned a %d-byte key", len(out.PublicKey))
	}
	copy(pub[:], out.PublicKey)
	return pub, nil
}

func (c *HTTP) do(method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return err
		}
		body = buf
	}
	req, err := http.NewRequest(method, c.Base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &StatusError{Path: path, Status: resp.StatusCode, Message: e.Error}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
