package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/trufflehub/farm-management/internal"
	"github.com/trufflehub/farm-management/internal/broadcast"
)

var _ = ginkgo.Describe("CleanupWorker", func() {
	var (
		worker    *CleanupWorker
		repo      *mockRepository
		publisher *mockPublisher
		counts    *CountCache
		ctx       context.Context
		now       time.Time
	)

	seed := func(userID int64, notificationType string, age time.Duration) *Notification {
		n := &Notification{
			UserID:           userID,
			Message:          "seeded",
			NotificationType: notificationType,
		}
		gomega.Expect(repo.Create(ctx, n)).To(gomega.Succeed())
		stored := repo.notifications[n.ID]
		stored.CreatedAt = now.Add(-age)
		return stored
	}

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		repo = newMockRepository()
		publisher = newMockPublisher()
		counts = NewCountCache(5 * time.Minute)
		now = time.Now()
		worker = NewCleanupWorker(repo, publisher, counts, slog.Default(), internal.NotificationConfig{
			RetentionDays: 21,
		})
		worker.now = func() time.Time { return now }
	})

	ginkgo.Describe("auto-read pass", func() {
		ginkgo.It("should mark a two minute old info notification read", func() {
			stale := seed(7, TypeInfo, 2*time.Minute)

			summary, err := worker.Run(ctx)

			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(summary.AutoRead).To(gomega.Equal(int64(1)))
			gomega.Expect(repo.notifications[stale.ID].IsRead()).To(gomega.BeTrue())
		})

		ginkgo.It("should leave a thirty second old info notification unread", func() {
			fresh := seed(7, TypeInfo, 30*time.Second)

			summary, err := worker.Run(ctx)

			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(summary.AutoRead).To(gomega.Equal(int64(0)))
			gomega.Expect(repo.notifications[fresh.ID].IsRead()).To(gomega.BeFalse())
		})

		ginkgo.It("should give warnings five minutes and errors an hour", func() {
			youngWarning := seed(7, TypeWarning, 2*time.Minute)
			oldWarning := seed(7, TypeWarning, 10*time.Minute)
			youngError := seed(7, TypeError, 30*time.Minute)
			oldError := seed(7, TypeError, 2*time.Hour)

			summary, err := worker.Run(ctx)

			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(summary.AutoRead).To(gomega.Equal(int64(2)))
			gomega.Expect(repo.notifications[youngWarning.ID].IsRead()).To(gomega.BeFalse())
			gomega.Expect(repo.notifications[oldWarning.ID].IsRead()).To(gomega.BeTrue())
			gomega.Expect(repo.notifications[youngError.ID].IsRead()).To(gomega.BeFalse())
			gomega.Expect(repo.notifications[oldError.ID].IsRead()).To(gomega.BeTrue())
		})

		ginkgo.It("should broadcast a fresh count to each affected user", func() {
			seed(7, TypeInfo, 2*time.Minute)
			seed(7, TypeInfo, 3*time.Minute)
			seed(8, TypeSuccess, 2*time.Minute)

			_, err := worker.Run(ctx)

			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(publisher.envelopesOfType(7, broadcast.TypeUnreadCountUpdated)).To(gomega.HaveLen(1))
			gomega.Expect(publisher.envelopesOfType(8, broadcast.TypeUnreadCountUpdated)).To(gomega.HaveLen(1))
		})

		ginkgo.It("should skip already read notifications", func() {
			stale := seed(7, TypeInfo, 2*time.Minute)
			readAt := now.Add(-time.Minute)
			repo.notifications[stale.ID].ReadAt = &readAt

			summary, err := worker.Run(ctx)

			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(summary.AutoRead).To(gomega.Equal(int64(0)))
		})
	})

	ginkgo.Describe("retention purge", func() {
		ginkgo.It("should delete notifications past the retention window regardless of state", func() {
			expired := seed(7, TypeInfo, 22*24*time.Hour)
			readAt := now.Add(-20 * 24 * time.Hour)
			repo.notifications[expired.ID].ReadAt = &readAt
			kept := seed(7, TypeInfo, 20*24*time.Hour)

			summary, err := worker.Run(ctx)

			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(summary.OldDeleted).To(gomega.Equal(int64(1)))
			gomega.Expect(repo.notifications).NotTo(gomega.HaveKey(expired.ID))
			gomega.Expect(repo.notifications).To(gomega.HaveKey(kept.ID))
		})

		ginkgo.It("should run even when the auto-read pass fails", func() {
			seed(7, TypeInfo, 22*24*time.Hour)
			repo.findDueErr = context.DeadlineExceeded

			summary, err := worker.Run(ctx)

			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(summary.OldDeleted).To(gomega.Equal(int64(1)))
		})
	})
})

var _ = ginkgo.Describe("Notification state transitions", func() {
	ginkgo.It("should only flip each timestamp once", func() {
		n := &Notification{}
		first := time.Now()
		later := first.Add(time.Hour)

		gomega.Expect(n.MarkRead(first)).To(gomega.BeTrue())
		gomega.Expect(n.MarkRead(later)).To(gomega.BeFalse())
		gomega.Expect(*n.ReadAt).To(gomega.Equal(first))

		gomega.Expect(n.Dismiss(first)).To(gomega.BeTrue())
		gomega.Expect(n.Dismiss(later)).To(gomega.BeFalse())

		gomega.Expect(n.MarkDisplayed(first)).To(gomega.BeTrue())
		gomega.Expect(n.MarkDisplayed(later)).To(gomega.BeFalse())
	})

	ginkgo.It("should keep the three timestamps independent", func() {
		n := &Notification{}
		at := time.Now()

		n.MarkRead(at)

		gomega.Expect(n.IsRead()).To(gomega.BeTrue())
		gomega.Expect(n.IsDismissed()).To(gomega.BeFalse())
		gomega.Expect(n.IsDisplayed()).To(gomega.BeFalse())
	})
})

var _ = ginkgo.Describe("NormalizeType", func() {
	ginkgo.It("should accept the four known types", func() {
		for _, t := range []string{TypeInfo, TypeSuccess, TypeWarning, TypeError} {
			gomega.Expect(NormalizeType(t)).To(gomega.Equal(t))
		}
	})

	ginkgo.It("should coerce anything else to info", func() {
		gomega.Expect(NormalizeType("")).To(gomega.Equal(TypeInfo))
		gomega.Expect(NormalizeType("urgent")).To(gomega.Equal(TypeInfo))
	})
})

var _ = ginkgo.Describe("CountCache", func() {
	ginkgo.It("should expire entries after the TTL", func() {
		cache := NewCountCache(time.Minute)
		base := time.Now()
		cache.now = func() time.Time { return base }
		cache.Set(7, 3)

		cache.now = func() time.Time { return base.Add(2 * time.Minute) }

		_, ok := cache.Get(7)
		gomega.Expect(ok).To(gomega.BeFalse())
	})

	ginkgo.It("should invalidate only the given user", func() {
		cache := NewCountCache(time.Minute)
		cache.Set(7, 3)
		cache.Set(8, 1)

		cache.Invalidate(7)

		_, ok := cache.Get(7)
		gomega.Expect(ok).To(gomega.BeFalse())
		count, ok := cache.Get(8)
		gomega.Expect(ok).To(gomega.BeTrue())
		gomega.Expect(count).To(gomega.Equal(int64(1)))
	})
})
