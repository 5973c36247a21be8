// Package services – PairingService
//
// This file implements the pairing gate. A group is created with a one-time
// pairing code; the first device that presents it is paired and
// auto-authorized, and the code is consumed in the same transaction. Later
// devices are stored unauthorized. Authenticate checks a device secret
// before tokens are issued.
package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"gorm.io/gorm"

	"github.com/instalist/instalist-server/internal/domain"
	"github.com/instalist/instalist-server/internal/kinds"
	"github.com/instalist/instalist-server/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PairingAlphabet excludes the letter O so codes read unambiguously.
const PairingAlphabet = "ABCDEFGHIJKLMNPQRSTUVWXYZ0123456789"

// Pairing defaults.
const (
	DefaultPairingCodeLength   = 6
	DefaultPairingCodeAttempts = 16
)

// PairingRepo defines the group and device operations required by
// PairingService.
type PairingRepo interface {
	CreateGroup(ctx context.Context, db *gorm.DB, pairingCode string) (*domain.Group, error)
	GetGroup(ctx context.Context, db *gorm.DB, id uint64) (*domain.Group, error)
	ConsumePairingCode(ctx context.Context, db *gorm.DB, groupID uint64, code string) error
	CountDevices(ctx context.Context, db *gorm.DB, groupID uint64) (int64, error)
	CreateDevice(ctx context.Context, db *gorm.DB, groupID uint64, name, secretHash string, authorized bool) (*domain.Device, error)
	GetDevice(ctx context.Context, db *gorm.DB, id uint64) (*domain.Device, error)
	ListDevices(ctx context.Context, db *gorm.DB, groupID uint64) ([]domain.Device, error)
}

// SecretHasher hashes and verifies device secrets.
type SecretHasher interface {
	Hash(secret string) (string, error)
	Compare(hash, secret string) error
}

// Randomizer returns a uniform integer in [0, n).
type Randomizer interface {
	IntN(n int) int
}

// CryptoRandom draws from crypto/rand.
type CryptoRandom struct{}

// IntN implements Randomizer.
func (CryptoRandom) IntN(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return int(v.Int64())
}

// PairingService creates groups and pairs devices with them.
type PairingService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the group/device repository.
	Repo PairingRepo
	// Hasher stores device secrets.
	Hasher SecretHasher
	// Rand generates pairing codes.
	Rand Randomizer

	CodeLength  int
	MaxAttempts int
}

// NewPairingService constructs a PairingService with crypto-backed codes.
func NewPairingService(db *gorm.DB, r PairingRepo, h SecretHasher) *PairingService {
	return &PairingService{
		DB:          db,
		Repo:        r,
		Hasher:      h,
		Rand:        CryptoRandom{},
		CodeLength:  DefaultPairingCodeLength,
		MaxAttempts: DefaultPairingCodeAttempts,
	}
}

// CreateGroup inserts a group with a fresh pairing code. A code colliding
// with an active one is regenerated up to MaxAttempts times.
func (s *PairingService) CreateGroup(ctx context.Context) (*domain.Group, error) {
	ctx, span := otel.Tracer("services/PairingService").Start(ctx, "CreateGroup")
	defer span.End()

	attempts := s.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultPairingCodeAttempts
	}
	for i := 0; i < attempts; i++ {
		g, err := s.Repo.CreateGroup(ctx, s.DB, s.newCode())
		if err == nil {
			span.SetAttributes(attribute.Int64("group.id", int64(g.ID)), attribute.Int("pairing.attempts", i+1))
			return g, nil
		}
		if !errors.Is(err, repo.ErrDuplicate) {
			span.RecordError(err)
			return nil, err
		}
	}
	err := fmt.Errorf("no unique pairing code after %d attempts", attempts)
	span.RecordError(err)
	return nil, err
}

// RegisterDevice pairs a device with a group using its pairing code. The
// first device of a group is authorized; the code is consumed on success.
func (s *PairingService) RegisterDevice(ctx context.Context, groupID uint64, code, name, secret string) (*domain.Device, error) {
	ctx, span := otel.Tracer("services/PairingService").Start(ctx, "RegisterDevice",
		trace.WithAttributes(attribute.Int64("group.id", int64(groupID))),
	)
	defer span.End()

	name = kinds.NormalizeText(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", kinds.ErrInvalidData)
	}
	if secret == "" {
		return nil, fmt.Errorf("%w: secret is required", kinds.ErrInvalidData)
	}
	code = strings.ToUpper(strings.TrimSpace(code))

	// Hash outside the transaction to keep the write lock short.
	hash, err := s.Hasher.Hash(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kinds.ErrInvalidData, err)
	}

	var dev *domain.Device
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := s.Repo.GetGroup(ctx, tx, groupID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrGroupNotFound
		}
		if err != nil {
			return err
		}
		if g.PairingCode == nil || subtle.ConstantTimeCompare([]byte(*g.PairingCode), []byte(code)) != 1 {
			return ErrPairingRejected
		}
		if err := s.Repo.ConsumePairingCode(ctx, tx, groupID, code); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrPairingRejected
			}
			return err
		}

		n, err := s.Repo.CountDevices(ctx, tx, groupID)
		if err != nil {
			return err
		}
		d, err := s.Repo.CreateDevice(ctx, tx, groupID, name, hash, n == 0)
		if err != nil {
			return err
		}
		dev = d
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int64("device.id", int64(dev.ID)), attribute.Bool("device.authorized", dev.Authorized))
	return dev, nil
}

// Authenticate verifies a device secret. Unknown devices and wrong secrets
// yield ErrInvalidCredentials; paired but unauthorized devices yield
// ErrDeviceUnauthorized.
func (s *PairingService) Authenticate(ctx context.Context, deviceID uint64, secret string) (*domain.Device, error) {
	ctx, span := otel.Tracer("services/PairingService").Start(ctx, "Authenticate",
		trace.WithAttributes(attribute.Int64("device.id", int64(deviceID))),
	)
	defer span.End()

	dev, err := s.Repo.GetDevice(ctx, s.DB, deviceID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := s.Hasher.Compare(dev.SecretHash, secret); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !dev.Authorized {
		return nil, ErrDeviceUnauthorized
	}
	return dev, nil
}

// ListDevices returns the devices paired with a group.
func (s *PairingService) ListDevices(ctx context.Context, groupID uint64) ([]domain.Device, error) {
	if _, err := s.Repo.GetGroup(ctx, s.DB, groupID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	return s.Repo.ListDevices(ctx, s.DB, groupID)
}

func (s *PairingService) newCode() string {
	n := s.CodeLength
	if n <= 0 {
		n = DefaultPairingCodeLength
	}
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(PairingAlphabet[s.Rand.IntN(len(PairingAlphabet))])
	}
	return b.String()
}
