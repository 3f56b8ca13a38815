// Package auth validates voter and committee logins against the store and
// manages committee accounts. Credentials are compared verbatim.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database/repositories"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/pkg/logger"
)

// LoginStatus is the outcome of a voter login
type LoginStatus int

const (
	LoginNotFound LoginStatus = iota
	LoginAlreadyVoted
	LoginSuccess
)

func (s LoginStatus) String() string {
	switch s {
	case LoginAlreadyVoted:
		return "already_voted"
	case LoginSuccess:
		return "success"
	default:
		return "not_found"
	}
}

// AdminStatus is the outcome of a committee login
type AdminStatus int

const (
	AdminNotFound AdminStatus = iota
	AdminWrongPassword
	AdminSuccess
)

func (s AdminStatus) String() string {
	switch s {
	case AdminWrongPassword:
		return "wrong_password"
	case AdminSuccess:
		return "success"
	default:
		return "not_found"
	}
}

const (
	MsgUnknownVoter  = "Username not found. Use siswa001 to siswa107."
	MsgAlreadyVoted  = "You have already voted and cannot vote again."
	MsgUnknownAdmin  = "Admin username not found."
	MsgWrongPassword = "Wrong password."
)

// DefaultPermissions is granted to admins whose record carries none
var DefaultPermissions = []string{"view", "edit", "delete", "reset"}

// LoginResult is returned by ValidateLogin
type LoginResult struct {
	Status  LoginStatus
	Voter   *database.Voter
	Message string
}

// AdminProfile is the session view of an admin, without the password
type AdminProfile struct {
	ID          int64    `json:"id"`
	Username    string   `json:"username"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// Can reports whether the profile carries permission p
func (p *AdminProfile) Can(permission string) bool {
	for _, have := range p.Permissions {
		if have == permission {
			return true
		}
	}
	return false
}

// AdminLoginResult is returned by ValidateAdminLogin
type AdminLoginResult struct {
	Status  AdminStatus
	Admin   *AdminProfile
	Message string
}

// AdminPatch lists the admin fields to change; nil fields are kept
type AdminPatch struct {
	Username    *string
	Password    *string
	Name        *string
	Role        *string
	Permissions []string
	Email       *string
	Phone       *string
}

// Service validates logins and manages committee accounts
type Service struct {
	voters    *repositories.VoterRepository
	admins    *repositories.AdminRepository
	audit     *repositories.AuditLogRepository
	ipAddress string
	log       *logger.Logger
}

// NewService creates an auth service. ipAddress is recorded on audit entries.
func NewService(store *database.Store, ipAddress string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	if ipAddress == "" {
		ipAddress = "localhost"
	}
	return &Service{
		voters:    repositories.NewVoterRepository(store),
		admins:    repositories.NewAdminRepository(store),
		audit:     repositories.NewAuditLogRepository(store),
		ipAddress: ipAddress,
		log:       log.WithComponent("auth"),
	}
}

// ValidateLogin checks whether username may open a ballot. A voter who has
// already voted is reported through Status, not as an error.
func (s *Service) ValidateLogin(ctx context.Context, username string) (*LoginResult, error) {
	voter, err := s.voters.GetByUsername(ctx, username)
	if errors.Is(err, database.ErrNotFound) {
		return &LoginResult{Status: LoginNotFound, Message: MsgUnknownVoter}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("validate login: %w", err)
	}

	if voter.HasVoted {
		s.log.Info("login refused, already voted", "voter_id", voter.ID)
		return &LoginResult{Status: LoginAlreadyVoted, Voter: voter, Message: MsgAlreadyVoted}, nil
	}
	return &LoginResult{Status: LoginSuccess, Voter: voter}, nil
}

// ValidateAdminLogin checks committee credentials. A successful login is
// recorded in the audit log when possible.
func (s *Service) ValidateAdminLogin(ctx context.Context, username, password string) (*AdminLoginResult, error) {
	admin, err := s.admins.GetByUsername(ctx, username)
	if errors.Is(err, database.ErrNotFound) {
		return &AdminLoginResult{Status: AdminNotFound, Message: MsgUnknownAdmin}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("validate admin login: %w", err)
	}
	if admin.Password != password {
		s.log.Warning("admin login rejected", "username", username)
		return &AdminLoginResult{Status: AdminWrongPassword, Message: MsgWrongPassword}, nil
	}

	s.record(ctx, database.ActionAdminLogin, fmt.Sprint(admin.ID), admin.Name, "Admin login successful")
	return &AdminLoginResult{Status: AdminSuccess, Admin: profileOf(admin)}, nil
}

func profileOf(a *database.Admin) *AdminProfile {
	perms := []string(a.Permissions)
	if len(perms) == 0 {
		perms = append([]string(nil), DefaultPermissions...)
	}
	return &AdminProfile{
		ID:          a.ID,
		Username:    a.Username,
		Name:        a.Name,
		Role:        a.Role,
		Permissions: perms,
	}
}

// ListAdmins returns every committee account
func (s *Service) ListAdmins(ctx context.Context) ([]*database.Admin, error) {
	return s.admins.All(ctx)
}

// AddAdmin creates a committee account. A zero id is replaced by the next
// free one.
func (s *Service) AddAdmin(ctx context.Context, a *database.Admin) error {
	if a.ID == 0 {
		id, err := s.admins.NextID(ctx)
		if err != nil {
			return err
		}
		a.ID = id
	}
	if err := s.admins.Add(ctx, a); err != nil {
		return err
	}
	s.record(ctx, database.ActionAdminAdded, "system", "System", "Admin added: "+a.Username)
	return nil
}

// UpdateAdmin applies patch to the admin with the given id
func (s *Service) UpdateAdmin(ctx context.Context, id int64, patch AdminPatch) (*database.Admin, error) {
	admin, err := s.admins.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("admin %d: %w", id, err)
	}

	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	apply(&admin.Username, patch.Username)
	apply(&admin.Password, patch.Password)
	apply(&admin.Name, patch.Name)
	apply(&admin.Role, patch.Role)
	apply(&admin.Email, patch.Email)
	apply(&admin.Phone, patch.Phone)
	if patch.Permissions != nil {
		admin.Permissions = database.StringList(patch.Permissions)
	}

	if err := s.admins.Put(ctx, admin); err != nil {
		return nil, err
	}
	s.record(ctx, database.ActionAdminUpdated, "system", "System", "Admin updated: "+admin.Username)
	return admin, nil
}

// DeleteAdmin removes a committee account
func (s *Service) DeleteAdmin(ctx context.Context, id int64) error {
	admin, err := s.admins.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("admin %d: %w", id, err)
	}
	if err := s.admins.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, database.ActionAdminDeleted, "system", "System", "Admin deleted: "+admin.Username)
	return nil
}

// record appends an audit entry; failures are logged and swallowed
func (s *Service) record(ctx context.Context, action database.AuditAction, userID, userName, details string) {
	entry := &database.AuditEntry{
		Action:    action,
		UserID:    userID,
		UserName:  userName,
		Details:   details,
		IPAddress: s.ipAddress,
	}
	if err := s.audit.Add(ctx, entry); err != nil {
		s.log.Warning("audit log skipped", "action", action, "error", err)
		return
	}
	s.log.AuditLogger(string(action), userID, "admins", details)
}
