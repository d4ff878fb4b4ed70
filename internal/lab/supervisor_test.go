package lab

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"gonos/internal/archive"
)

func blockingTask(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

var _ = Describe("Supervisor", func() {
	It("runs a task to completion and forgets it", func() {
		s := NewSupervisor()
		ran := make(chan struct{})

		Expect(s.Start("quick", func(ctx context.Context) error {
			close(ran)
			return nil
		})).To(Succeed())

		Eventually(ran).Should(BeClosed())
		Eventually(s.Tasks).Should(BeEmpty())
		Expect(s.Status()).To(BeEmpty())
	})

	It("rejects duplicate names while a task is running", func() {
		s := NewSupervisor()
		DeferCleanup(s.StopAll)

		Expect(s.Start("worker", blockingTask)).To(Succeed())
		Expect(s.Start("worker", blockingTask)).To(MatchError(ContainSubstring("task already running: worker")))
		Expect(s.Tasks()).To(Equal([]string{"worker"}))
	})

	It("validates the task name and runner", func() {
		s := NewSupervisor()
		Expect(s.Start("", blockingTask)).To(MatchError(ContainSubstring("task name is required")))
		Expect(s.Start("worker", nil)).To(MatchError(ContainSubstring("task runner is required")))
	})

	It("retains the status of failed tasks", func() {
		s := NewSupervisor()

		Expect(s.Start("flaky", func(ctx context.Context) error {
			return errors.New("bench exploded")
		})).To(Succeed())

		Eventually(s.Status).Should(ContainElement(TaskStatus{Name: "flaky", LastError: "bench exploded"}))
		Expect(s.Tasks()).To(BeEmpty())

		// Restarting the name clears the retained failure.
		Expect(s.Start("flaky", func(ctx context.Context) error { return nil })).To(Succeed())
		Eventually(s.Status).ShouldNot(ContainElement(TaskStatus{Name: "flaky", LastError: "bench exploded"}))
	})

	It("treats cancellation as a deliberate stop", func() {
		s := NewSupervisor()

		Expect(s.Start("worker", blockingTask)).To(Succeed())
		Expect(s.Tasks()).To(Equal([]string{"worker"}))

		s.Stop("worker")
		Expect(s.Tasks()).To(BeEmpty())
		Expect(s.Status()).To(BeEmpty())
	})

	It("stops every task at once", func() {
		s := NewSupervisor()

		Expect(s.Start("a", blockingTask)).To(Succeed())
		Expect(s.Start("b", blockingTask)).To(Succeed())
		Expect(s.Tasks()).To(Equal([]string{"a", "b"}))

		s.StopAll()
		Expect(s.Tasks()).To(BeEmpty())
		Expect(s.Status()).To(BeEmpty())
	})

	It("runs an evolution in the background", func() {
		store := archive.NewMemoryStore()
		l := newTestLab(Config{Store: store})
		s := NewSupervisor()

		cfg := phraseRunConfig()
		cfg.RunID = "background-run"

		Expect(s.Start("background", func(ctx context.Context) error {
			_, err := l.RunEvolution(ctx, cfg)
			return err
		})).To(Succeed())

		Eventually(func() bool {
			_, ok, err := store.GetRun(context.Background(), "background-run")
			Expect(err).NotTo(HaveOccurred())
			return ok
		}).Should(BeTrue())
		Eventually(s.Tasks).Should(BeEmpty())
		Expect(s.Status()).To(BeEmpty())
	})
})
