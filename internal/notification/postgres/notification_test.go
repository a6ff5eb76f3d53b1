package postgres_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/trufflehub/farm-management/internal"
	notificationDatamodel "github.com/trufflehub/farm-management/internal/core/datamodel/notification"
	"github.com/trufflehub/farm-management/internal/notification"
	notificationPostgres "github.com/trufflehub/farm-management/internal/notification/postgres"
)

func TestNotificationPostgres(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Notification Postgres Suite")
}

var _ = Describe("Notification PostgreSQL Repository", func() {
	var (
		db   *gorm.DB
		repo notification.Repository
		ctx  context.Context
	)

	create := func(userID int64, notificationType string) *notification.Notification {
		n := &notification.Notification{
			UserID:           userID,
			Message:          "Harvest logged",
			NotificationType: notificationType,
			Metadata:         map[string]any{"plot": "north-3"},
		}
		Expect(repo.Create(ctx, n)).To(Succeed())
		return n
	}

	backdate := func(id int64, createdAt time.Time) {
		err := db.Model(&notificationDatamodel.Notification{}).
			Where("id = ?", id).
			Update("created_at", createdAt).Error
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		// Use SQLite in-memory database for testing
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: gormLogger.Default.LogMode(gormLogger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&notificationDatamodel.Notification{})
		Expect(err).NotTo(HaveOccurred())

		repo = notificationPostgres.NewNotificationRepository(db)
	})

	Describe("Create", func() {
		It("should persist the notification with metadata round-tripped", func() {
			n := create(7, "info")

			Expect(n.ID).To(BeNumerically(">", 0))
			Expect(n.CreatedAt).NotTo(BeZero())

			stored, err := repo.GetByID(ctx, n.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Message).To(Equal("Harvest logged"))
			Expect(stored.Metadata).To(HaveKeyWithValue("plot", "north-3"))
		})
	})

	Describe("GetByID", func() {
		It("should return not-found for unknown ids", func() {
			_, err := repo.GetByID(ctx, 999)
			Expect(err).To(MatchError(internal.ErrNotificationNotFound))
		})
	})

	Describe("ListUnread", func() {
		It("should exclude read and dismissed notifications and respect the owner", func() {
			unread := create(7, "info")
			read := create(7, "info")
			dismissed := create(7, "info")
			create(8, "info")

			Expect(repo.MarkRead(ctx, read.ID, time.Now())).To(Succeed())
			Expect(repo.MarkDismissed(ctx, dismissed.ID, time.Now())).To(Succeed())

			list, err := repo.ListUnread(ctx, 7, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(1))
			Expect(list[0].ID).To(Equal(unread.ID))
		})

		It("should order most recent first and honor the limit", func() {
			older := create(7, "info")
			backdate(older.ID, time.Now().Add(-time.Hour))
			newer := create(7, "info")
			create(7, "info")

			list, err := repo.ListUnread(ctx, 7, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(2))
			ids := []int64{list[0].ID, list[1].ID}
			Expect(ids).To(ContainElement(newer.ID))
			Expect(ids).NotTo(ContainElement(older.ID))
		})
	})

	Describe("CountUnread", func() {
		It("should count only unread, undismissed rows for the user", func() {
			create(7, "info")
			read := create(7, "info")
			Expect(repo.MarkRead(ctx, read.ID, time.Now())).To(Succeed())
			create(8, "info")

			count, err := repo.CountUnread(ctx, 7)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(int64(1)))
		})
	})

	Describe("MarkRead", func() {
		It("should keep the first timestamp on repeated calls", func() {
			n := create(7, "info")
			first := time.Now().Add(-time.Minute).UTC().Truncate(time.Second)

			Expect(repo.MarkRead(ctx, n.ID, first)).To(Succeed())
			Expect(repo.MarkRead(ctx, n.ID, time.Now())).To(Succeed())

			stored, err := repo.GetByID(ctx, n.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.ReadAt).NotTo(BeNil())
			Expect(stored.ReadAt.UTC().Truncate(time.Second)).To(Equal(first))
		})

		It("should leave the other timestamps alone", func() {
			n := create(7, "info")

			Expect(repo.MarkRead(ctx, n.ID, time.Now())).To(Succeed())

			stored, err := repo.GetByID(ctx, n.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.DismissedAt).To(BeNil())
			Expect(stored.DisplayedAt).To(BeNil())
		})
	})

	Describe("MarkAllRead", func() {
		It("should flip only the user's unread rows and report the count", func() {
			create(7, "info")
			create(7, "warning")
			already := create(7, "info")
			Expect(repo.MarkRead(ctx, already.ID, time.Now())).To(Succeed())
			other := create(8, "info")

			affected, err := repo.MarkAllRead(ctx, 7, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(affected).To(Equal(int64(2)))

			stored, err := repo.GetByID(ctx, other.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.ReadAt).To(BeNil())
		})
	})

	Describe("FindAutoReadDue", func() {
		It("should return unread rows of the given types older than the cutoff", func() {
			stale := create(7, "info")
			backdate(stale.ID, time.Now().Add(-2*time.Minute))
			fresh := create(7, "info")
			staleWarning := create(7, "warning")
			backdate(staleWarning.ID, time.Now().Add(-2*time.Minute))

			due, err := repo.FindAutoReadDue(ctx, []string{"info", "success"}, time.Now().Add(-time.Minute))
			Expect(err).NotTo(HaveOccurred())
			Expect(due).To(HaveLen(1))
			Expect(due[0].ID).To(Equal(stale.ID))
			Expect(due[0].ID).NotTo(Equal(fresh.ID))
		})
	})

	Describe("MarkManyRead", func() {
		It("should skip already read ids in the affected count", func() {
			a := create(7, "info")
			b := create(7, "info")
			Expect(repo.MarkRead(ctx, b.ID, time.Now())).To(Succeed())

			affected, err := repo.MarkManyRead(ctx, []int64{a.ID, b.ID}, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(affected).To(Equal(int64(1)))
		})

		It("should handle an empty id list", func() {
			affected, err := repo.MarkManyRead(ctx, nil, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(affected).To(BeZero())
		})
	})

	Describe("DeleteOlderThan", func() {
		It("should purge rows past the cutoff regardless of read state", func() {
			expired := create(7, "info")
			Expect(repo.MarkRead(ctx, expired.ID, time.Now())).To(Succeed())
			backdate(expired.ID, time.Now().Add(-22*24*time.Hour))
			kept := create(7, "info")

			deleted, err := repo.DeleteOlderThan(ctx, time.Now().Add(-21*24*time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(Equal(int64(1)))

			_, err = repo.GetByID(ctx, expired.ID)
			Expect(err).To(MatchError(internal.ErrNotificationNotFound))
			_, err = repo.GetByID(ctx, kept.ID)
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
