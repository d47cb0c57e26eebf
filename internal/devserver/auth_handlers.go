package devserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/aixgo-dev/travelintel/pkg/auth"
)

var errDuplicate = errors.New("duplicate account")

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

type codeRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

// AddUser creates an account directly, bypassing the register endpoint.
func (s *Server) AddUser(username, email, password, phone string) (auth.User, error) {
	acct, err := s.createAccount(username, email, password, phone)
	if err != nil {
		return auth.User{}, err
	}
	return acct.user(), nil
}

func (s *Server) createAccount(username, email, password, phone string) (*account, error) {
	var hash []byte
	if password != "" {
		cost := s.cfg.BcryptCost
		if cost == 0 {
			cost = bcrypt.DefaultCost
		}
		h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
		if err != nil {
			return nil, err
		}
		hash = h
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if email != "" && strings.EqualFold(a.Email, email) {
			return nil, errDuplicate
		}
		if username != "" && a.Username == username {
			return nil, errDuplicate
		}
	}
	acct := &account{
		ID:           ulid.Make().String(),
		Username:     username,
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
	}
	s.accounts[acct.ID] = acct
	return acct, nil
}

func (a *account) user() auth.User {
	return auth.User{
		ID:       auth.UserID(a.ID),
		Username: a.Username,
		Email:    a.Email,
		Phone:    a.Phone,
		IsStaff:  a.IsStaff,
	}
}

func (s *Server) findByEmail(email string) *account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, email) {
			return a
		}
	}
	return nil
}

func (s *Server) respondSession(c *gin.Context, status int, acct *account) {
	token, err := s.issueToken(acct.ID)
	if err != nil {
		s.logger.Error("issue token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(status, gin.H{"token": token, "user": acct.user()})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request body"})
		return
	}
	acct := s.findByEmail(req.Email)
	if acct == nil || acct.PasswordHash == nil ||
		bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(req.Password)) != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid credentials"})
		return
	}
	s.respondSession(c, http.StatusOK, acct)
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registration
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request body"})
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Username, email and password are required"})
		return
	}
	acct, err := s.createAccount(req.Username, req.Email, req.Password, req.Phone)
	if errors.Is(err, errDuplicate) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "A user with that email or username already exists"})
		return
	}
	if err != nil {
		s.logger.Error("create account", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create account"})
		return
	}
	s.logger.Info("registered account", "user_id", acct.ID)
	s.respondSession(c, http.StatusCreated, acct)
}

func (s *Server) handleSendCode(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Phone == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Phone number is required"})
		return
	}
	code, err := generateCode()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate code"})
		return
	}
	s.mu.Lock()
	s.codes[req.Phone] = code
	s.mu.Unlock()

	// No SMS gateway; the code is only logged.
	s.logger.Info("issued one-time code", "phone", req.Phone, "code", code)
	c.JSON(http.StatusOK, gin.H{"detail": "Code sent"})
}

func (s *Server) handleVerifyCode(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Phone == "" || req.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Phone and code are required"})
		return
	}

	s.mu.Lock()
	expected, ok := s.codes[req.Phone]
	if !ok || expected != req.Code {
		s.mu.Unlock()
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid or expired code"})
		return
	}
	delete(s.codes, req.Phone)
	var acct *account
	for _, a := range s.accounts {
		if a.Phone == req.Phone {
			acct = a
			break
		}
	}
	if acct == nil {
		acct = &account{
			ID:       ulid.Make().String(),
			Username: "user_" + strings.TrimPrefix(req.Phone, "+"),
			Phone:    req.Phone,
		}
		s.accounts[acct.ID] = acct
	}
	s.mu.Unlock()

	s.respondSession(c, http.StatusOK, acct)
}
