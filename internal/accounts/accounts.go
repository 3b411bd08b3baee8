package accounts

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"account_service/internal/lib/accesscode"
	"account_service/internal/lib/jwt"
	sl "account_service/internal/lib/logger"
	"account_service/internal/lib/passhash"
	"account_service/internal/models"
	"account_service/internal/storage"

	"github.com/google/uuid"
)

// ErrInvalidCredentials is returned for an unknown email, a wrong
// password and a bad refresh token alike, so callers cannot probe
// which accounts exist.
var ErrInvalidCredentials = errors.New("invalid credentials")

type AccountSaver interface {
	SaveAccount(ctx context.Context, acc models.Account, codeID, code string) (models.Account, error)
}

type AccountProvider interface {
	AccountByEmail(ctx context.Context, email string) (models.Account, error)
	ExistsByID(ctx context.Context, id string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

type CodeConsumer interface {
	ConsumeAccessCode(ctx context.Context, accountID, code string, maxAge time.Duration) error
}

type Publisher interface {
	SendMessage(ctx context.Context, msg models.Message) error
}

// Accounts runs the registration, verification and login workflow for
// one account kind. The admin and staff instances share this code and
// differ only in the kind descriptor and backing repositories.
type Accounts struct {
	log       *slog.Logger
	saver     AccountSaver
	provider  AccountProvider
	consumer  CodeConsumer
	publisher Publisher
	hasher    *passhash.Hasher
	tokens    *jwt.Manager
	kind      models.Kind
	codeTTL   time.Duration
}

func New(
	log *slog.Logger,
	saver AccountSaver,
	provider AccountProvider,
	consumer CodeConsumer,
	publisher Publisher,
	hasher *passhash.Hasher,
	tokens *jwt.Manager,
	kind models.Kind,
	codeTTL time.Duration,
) *Accounts {
	return &Accounts{
		log:       log,
		saver:     saver,
		provider:  provider,
		consumer:  consumer,
		publisher: publisher,
		hasher:    hasher,
		tokens:    tokens,
		kind:      kind,
		codeTTL:   codeTTL,
	}
}

// Register creates an unverified account and its access code in one
// write. The duplicate-email pre-check is an optimization: the unique
// constraint surfaced by the saver is the real guarantee, so the race
// between two concurrent registrations still resolves to one
// ErrAccountExists.
func (a *Accounts) Register(ctx context.Context, email, username, password string) (models.Account, error) {
	const op = "accounts.Register"

	log := a.log.With(slog.String("op", op), slog.String("kind", a.kind.Name))

	taken, err := a.provider.ExistsByEmail(ctx, email)
	if err != nil {
		log.Error("failed to check email", sl.Err(err))
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}
	if taken {
		log.Warn("email already registered")
		return models.Account{}, storage.ErrAccountExists
	}

	if a.kind.AutoCredentials {
		username, password, err = generateCredentials(email)
		if err != nil {
			log.Error("failed to generate credentials", sl.Err(err))
			return models.Account{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	passHash, err := a.hasher.Hash(password)
	if err != nil {
		log.Error("failed to hash password", sl.Err(err))
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	code, err := accesscode.Generate()
	if err != nil {
		log.Error("failed to generate access code", sl.Err(err))
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	acc := models.Account{
		ID:       newID(),
		Email:    email,
		Username: username,
		PassHash: []byte(passHash),
		Roles:    a.kind.DefaultRoles,
	}

	saved, err := a.saver.SaveAccount(ctx, acc, newID(), code)
	if err != nil {
		if errors.Is(err, storage.ErrAccountExists) {
			log.Warn("email already registered")
			return models.Account{}, storage.ErrAccountExists
		}

		log.Error("failed to save account", sl.Err(err))
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	a.publishCode(ctx, log, saved.Email, code)

	log.Info("account registered", slog.String("id", saved.ID))

	return saved, nil
}

// Verify redeems the access code for the account. false means no
// matching outstanding code; a consumed code stays consumed, so a
// second call with the same code is false as well.
func (a *Accounts) Verify(ctx context.Context, accountID, code string) (bool, error) {
	const op = "accounts.Verify"

	log := a.log.With(slog.String("op", op), slog.String("kind", a.kind.Name))

	err := a.consumer.ConsumeAccessCode(ctx, accountID, code, a.codeTTL)
	if err != nil {
		if errors.Is(err, storage.ErrCodeNotFound) {
			log.Warn("no matching access code", slog.String("id", accountID))
			return false, nil
		}

		log.Error("failed to consume access code", sl.Err(err))
		return false, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("account verified", slog.String("id", accountID))

	return true, nil
}

// Login checks the credentials and issues a bearer token. Verification
// status is deliberately not checked: an unverified account can log in.
func (a *Accounts) Login(ctx context.Context, email, password string) (string, error) {
	const op = "accounts.Login"

	log := a.log.With(slog.String("op", op), slog.String("kind", a.kind.Name))

	acc, err := a.provider.AccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			log.Warn("account not found")
			return "", ErrInvalidCredentials
		}

		log.Error("failed to get account", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if !a.hasher.Verify(password, string(acc.PassHash)) {
		log.Warn("invalid password", slog.String("id", acc.ID))
		return "", ErrInvalidCredentials
	}

	token, err := a.tokens.Issue(acc.ID)
	if err != nil {
		log.Error("failed to issue token", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("account logged in", slog.String("id", acc.ID))

	return token, nil
}

// Exists reports whether an account exists. The id lookup takes
// priority; with neither argument the answer is false without touching
// storage.
func (a *Accounts) Exists(ctx context.Context, accountID, email string) (bool, error) {
	const op = "accounts.Exists"

	switch {
	case accountID != "":
		found, err := a.provider.ExistsByID(ctx, accountID)
		if err != nil {
			return false, fmt.Errorf("%s: %w", op, err)
		}
		return found, nil
	case email != "":
		found, err := a.provider.ExistsByEmail(ctx, email)
		if err != nil {
			return false, fmt.Errorf("%s: %w", op, err)
		}
		return found, nil
	default:
		return false, nil
	}
}

// Refresh trades an unexpired token for a fresh one with the same
// subject. There is no separate refresh-token type: any valid access
// token is accepted.
func (a *Accounts) Refresh(ctx context.Context, oldToken string) (string, error) {
	const op = "accounts.Refresh"

	log := a.log.With(slog.String("op", op), slog.String("kind", a.kind.Name))

	accountID, err := a.tokens.Validate(oldToken)
	if err != nil {
		log.Warn("invalid refresh token", sl.Err(err))
		return "", ErrInvalidCredentials
	}

	token, err := a.tokens.Issue(accountID)
	if err != nil {
		log.Error("failed to issue token", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("token refreshed", slog.String("id", accountID))

	return token, nil
}

// publishCode hands the code to the mail queue. The code row is already
// durable, so a publish failure is logged and registration proceeds.
func (a *Accounts) publishCode(ctx context.Context, log *slog.Logger, email, code string) {
	if a.publisher == nil {
		return
	}

	msg := models.Message{
		Email:   email,
		Code:    code,
		Purpose: "account_verification",
	}

	if err := a.publisher.SendMessage(ctx, msg); err != nil {
		log.Warn("failed to publish verification code", sl.Err(err))
	}
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// generateCredentials builds a username from the email local part plus
// a random suffix, and a random one-time password. Used by kinds whose
// signup takes only an email.
func generateCredentials(email string) (username, password string, err error) {
	suffix := make([]byte, 2)
	if _, err := rand.Read(suffix); err != nil {
		return "", "", err
	}

	pass := make([]byte, 8)
	if _, err := rand.Read(pass); err != nil {
		return "", "", err
	}

	local := email
	if i := strings.IndexByte(email, '@'); i > 0 {
		local = email[:i]
	}

	return local + "-" + hex.EncodeToString(suffix), hex.EncodeToString(pass), nil
}
