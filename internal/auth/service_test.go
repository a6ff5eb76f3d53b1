package auth

import (
	"context"
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"

	"github.com/trufflehub/farm-management/internal"
	"github.com/trufflehub/farm-management/internal/user"
)

func TestAuth(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Auth Module Suite")
}

// Mock UserDirectory for testing
type mockUserDirectory struct {
	users map[string]*user.User
}

func newMockUserDirectory() *mockUserDirectory {
	return &mockUserDirectory{users: make(map[string]*user.User)}
}

func (m *mockUserDirectory) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	u, ok := m.users[email]
	if !ok {
		return nil, internal.ErrUserNotFound
	}
	return u, nil
}

func (m *mockUserDirectory) GetActor(ctx context.Context, userID int64) (*internal.Actor, error) {
	for _, u := range m.users {
		if u.ID == userID {
			if !u.IsActive {
				return nil, internal.ErrUserInactive
			}
			return &internal.Actor{UserID: u.ID, Email: u.Email, IsAdmin: u.IsAdmin}, nil
		}
	}
	return nil, internal.ErrUserNotFound
}

var _ = ginkgo.Describe("AuthService", func() {
	var (
		service *Service
		users   *mockUserDirectory
		tokens  *JWTTokenGenerator
		ctx     context.Context
	)

	const password = "correct-horse-battery"

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		users = newMockUserDirectory()
		tokens = NewJWTTokenGenerator("test-secret-at-least-32-characters!", 15*time.Minute, 7*24*time.Hour)
		service = NewService(users, tokens)

		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		users.users["worker@trufflehub.test"] = &user.User{
			ID:           7,
			Email:        "worker@trufflehub.test",
			PasswordHash: string(hash),
			IsActive:     true,
		}
	})

	ginkgo.Describe("Authenticate", func() {
		ginkgo.Context("with valid credentials", func() {
			ginkgo.It("should return a usable token pair", func() {
				// Given
				dto := LoginDTO{Email: "worker@trufflehub.test", Password: password}

				// When
				pair, err := service.Authenticate(ctx, dto)

				// Then
				gomega.Expect(err).NotTo(gomega.HaveOccurred())
				gomega.Expect(pair.AccessToken).NotTo(gomega.BeEmpty())
				gomega.Expect(pair.RefreshToken).NotTo(gomega.BeEmpty())

				claims, err := service.ValidateAccessToken(pair.AccessToken)
				gomega.Expect(err).NotTo(gomega.HaveOccurred())
				gomega.Expect(claims.UserID).To(gomega.Equal(int64(7)))
				gomega.Expect(claims.Email).To(gomega.Equal("worker@trufflehub.test"))
			})
		})

		ginkgo.Context("with a wrong password", func() {
			ginkgo.It("should return invalid credentials", func() {
				dto := LoginDTO{Email: "worker@trufflehub.test", Password: "nope"}

				_, err := service.Authenticate(ctx, dto)

				gomega.Expect(err).To(gomega.MatchError(ErrInvalidCredentials))
			})
		})

		ginkgo.Context("with an unknown email", func() {
			ginkgo.It("should return the same invalid credentials error", func() {
				dto := LoginDTO{Email: "nobody@trufflehub.test", Password: password}

				_, err := service.Authenticate(ctx, dto)

				gomega.Expect(err).To(gomega.MatchError(ErrInvalidCredentials))
			})
		})

		ginkgo.Context("with an inactive account", func() {
			ginkgo.It("should refuse even with the right password", func() {
				users.users["worker@trufflehub.test"].IsActive = false
				dto := LoginDTO{Email: "worker@trufflehub.test", Password: password}

				_, err := service.Authenticate(ctx, dto)

				gomega.Expect(err).To(gomega.MatchError(ErrUserInactive))
			})
		})

		ginkgo.Context("with missing fields", func() {
			ginkgo.It("should fail validation before touching the store", func() {
				_, err := service.Authenticate(ctx, LoginDTO{Email: "worker@trufflehub.test"})
				gomega.Expect(err).To(gomega.HaveOccurred())

				_, err = service.Authenticate(ctx, LoginDTO{Password: password})
				gomega.Expect(err).To(gomega.HaveOccurred())
			})
		})
	})

	ginkgo.Describe("RefreshTokens", func() {
		ginkgo.It("should issue a fresh pair from a valid refresh token", func() {
			pair, err := service.Authenticate(ctx, LoginDTO{Email: "worker@trufflehub.test", Password: password})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			renewed, err := service.RefreshTokens(ctx, pair.RefreshToken)

			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(renewed.AccessToken).NotTo(gomega.BeEmpty())

			claims, err := service.ValidateAccessToken(renewed.AccessToken)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(claims.UserID).To(gomega.Equal(int64(7)))
		})

		ginkgo.It("should reject garbage tokens", func() {
			_, err := service.RefreshTokens(ctx, "not-a-token")
			gomega.Expect(err).To(gomega.MatchError(ErrInvalidToken))
		})

		ginkgo.It("should refuse when the account was deactivated after issuance", func() {
			pair, err := service.Authenticate(ctx, LoginDTO{Email: "worker@trufflehub.test", Password: password})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			users.users["worker@trufflehub.test"].IsActive = false

			_, err = service.RefreshTokens(ctx, pair.RefreshToken)

			gomega.Expect(err).To(gomega.MatchError(internal.ErrUserInactive))
		})
	})
})

var _ = ginkgo.Describe("JWTTokenGenerator", func() {
	ginkgo.It("should reject tokens signed with a different secret", func() {
		issuer := NewJWTTokenGenerator("issuer-secret-with-32-characters!!!!", time.Minute, time.Hour)
		verifier := NewJWTTokenGenerator("other-secret-with-32-characters!!!!!", time.Minute, time.Hour)

		token, err := issuer.GenerateAccessToken(7, "worker@trufflehub.test")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		_, err = verifier.ValidateToken(token)

		gomega.Expect(err).To(gomega.MatchError(ErrInvalidToken))
	})

	ginkgo.It("should report expiry distinctly", func() {
		generator := NewJWTTokenGenerator("test-secret-at-least-32-characters!", time.Minute, time.Hour)

		token, err := generator.sign(7, "worker@trufflehub.test", -time.Minute)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		_, err = generator.ValidateToken(token)

		gomega.Expect(err).To(gomega.MatchError(ErrTokenExpired))
	})

	ginkgo.It("should fall back to sane TTLs for zero values", func() {
		generator := NewJWTTokenGenerator("test-secret-at-least-32-characters!", 0, 0)

		gomega.Expect(generator.AccessTokenTTL).To(gomega.Equal(15 * time.Minute))
		gomega.Expect(generator.RefreshTokenTTL).To(gomega.Equal(7 * 24 * time.Hour))
	})
})
