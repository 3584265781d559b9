package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/npezzotti/go-chatclient/internal/auth"
	"github.com/npezzotti/go-chatclient/internal/types"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTTL = 24 * time.Hour

var passwordCost = bcrypt.DefaultCost

type RegisterRequest struct {
	Username string `json:"username" validate:"required,alphanum,min=3,max=32"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.validate.Struct(req); err != nil {
		errResp := NewBadRequestError().WithMessage(err.Error())
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := CreateAccount(s.repo, req.Username, req.Email, req.Password)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, ErrConflict) {
			errResp = NewConflictError().WithMessage("Username or email already registered")
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, toWireUser(user))
}

// login takes form-encoded username and password, as OAuth2 password
// flows do, and returns a bearer token.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	username, password := r.PostForm.Get("username"), r.PostForm.Get("password")
	if username == "" || password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.repo.GetAccountByLogin(username)
	if err != nil && !errors.Is(err, ErrNotFound) {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err != nil || !verifyPassword(user.PasswordHash, password) {
		errResp := NewUnauthorizedError().WithMessage("Incorrect username or password")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	token, err := auth.Sign(s.signingKey, user.Id, user.Username, s.tokenTTL)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.log.Info().Str("user", user.Username).Msg("user logged in")
	s.writeJson(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	s.writeJson(w, http.StatusOK, toWireUser(user))
}

// requestUser loads the authenticated user, writing an error response when
// that fails.
func (s *Server) requestUser(w http.ResponseWriter, r *http.Request) (User, bool) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return User{}, false
	}

	user, err := s.repo.GetAccountById(userId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, ErrNotFound) {
			errResp = NewUnauthorizedError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return User{}, false
	}

	return user, true
}

// CreateAccount hashes password and stores a new user.
func CreateAccount(repo Repository, username, email, password string) (User, error) {
	pwdHash, err := hashPassword(password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	return repo.CreateAccount(CreateAccountParams{
		Username:     username,
		Email:        email,
		PasswordHash: pwdHash,
	})
}

func hashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), passwordCost)
	return string(passwdHash), err
}

func verifyPassword(passwdHash, passwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd))
	return err == nil
}

// SeedAccount is a user created at startup.
type SeedAccount struct {
	Username string
	Password string
}

// Seed creates accounts plus a public "general" room every one of them
// belongs to.
func Seed(repo Repository, accounts ...SeedAccount) ([]User, Room, error) {
	users := make([]User, 0, len(accounts))
	for _, a := range accounts {
		u, err := CreateAccount(repo, a.Username, "", a.Password)
		if err != nil {
			return nil, Room{}, fmt.Errorf("seed %s: %w", a.Username, err)
		}
		users = append(users, u)
	}
	if len(users) == 0 {
		return users, Room{}, nil
	}

	code, err := newJoinCode()
	if err != nil {
		return nil, Room{}, fmt.Errorf("join code: %w", err)
	}

	room, err := repo.CreateRoom(CreateRoomParams{
		Name:        "general",
		Description: "Everyone's here",
		OwnerId:     users[0].Id,
		JoinCode:    code,
	})
	if err != nil {
		return nil, Room{}, fmt.Errorf("seed room: %w", err)
	}

	for _, u := range users[1:] {
		if err := repo.AddMember(room.Id, u.Id, types.RoleMember); err != nil {
			return nil, Room{}, fmt.Errorf("seed member: %w", err)
		}
	}

	return users, room, nil
}
