package engine_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/prodline/prodline/internal/engine"
	"github.com/prodline/prodline/pkg/notifier"
	"github.com/prodline/prodline/pkg/types"
)

var _ = Describe("ProductionLine", func() {
	var (
		line *engine.ProductionLine
		rec  *notifier.Recorder
	)

	build := func(machines int, latency time.Duration) {
		var err error
		rec = notifier.NewRecorder()
		line, err = engine.New(machines, engine.WithSink(rec), engine.WithProcessingTime(latency))
		Expect(err).NotTo(HaveOccurred())
	}

	submitAll := func(orders ...types.Order) {
		for _, o := range orders {
			Expect(line.Submit(o)).To(Succeed())
		}
	}

	processedCount := func() int { return rec.Count(types.EventOrderProcessed) }

	AfterEach(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		Expect(line.Stop(ctx)).To(Succeed())
	})

	Context("with a single machine", func() {
		BeforeEach(func() { build(1, time.Millisecond) })

		It("serves lower priority values first, submission order among equals", func() {
			submitAll(
				types.Order{ID: 1, Priority: 2},
				types.Order{ID: 2, Priority: 1},
				types.Order{ID: 3, Priority: 3},
				types.Order{ID: 4, Priority: 1},
			)
			Expect(line.Start(context.Background())).To(Succeed())

			Eventually(processedCount).Should(Equal(4))
			Expect(rec.OrderIDs(types.EventOrderProcessed)).To(Equal([]int{2, 4, 1, 3}))
		})

		It("dequeues duplicates of the same order independently", func() {
			submitAll(types.Order{ID: 9, Priority: 1}, types.Order{ID: 9, Priority: 1})
			Expect(line.Start(context.Background())).To(Succeed())

			Eventually(processedCount).Should(Equal(2))
			Expect(rec.OrderIDs(types.EventOrderProcessed)).To(Equal([]int{9, 9}))
		})
	})

	Context("with the demo scenario", func() {
		BeforeEach(func() { build(4, 5*time.Millisecond) })

		It("eventually processes every submitted order exactly once", func() {
			Expect(line.Start(context.Background())).To(Succeed())
			submitAll(
				types.Order{ID: 1, Priority: 2}, types.Order{ID: 2, Priority: 1},
				types.Order{ID: 3, Priority: 3}, types.Order{ID: 4, Priority: 1},
				types.Order{ID: 5, Priority: 3}, types.Order{ID: 6, Priority: 3},
				types.Order{ID: 7, Priority: 3}, types.Order{ID: 8, Priority: 1},
			)

			Eventually(processedCount).Should(Equal(8))
			Expect(rec.OrderIDs(types.EventOrderProcessed)).To(ConsistOf(1, 2, 3, 4, 5, 6, 7, 8))
			Expect(line.Stats().Pending).To(BeZero())
		})

		It("never hands work to a broken machine", func() {
			Expect(line.BreakMachine(2)).To(Succeed())
			Expect(line.Start(context.Background())).To(Succeed())
			for i := 1; i <= 20; i++ {
				submitAll(types.Order{ID: i, Priority: i % 3})
			}

			Eventually(processedCount).Should(Equal(20))
			for _, e := range rec.OfType(types.EventOrderProcessing) {
				Expect(e.MachineID).NotTo(Equal(2))
			}
		})

		It("rejects machine ids outside the line", func() {
			Expect(line.BreakMachine(0)).To(MatchError(engine.ErrInvalidMachine))
			Expect(line.RepairMachine(5)).To(MatchError(engine.ErrInvalidMachine))
		})
	})

	Context("when every machine is down", func() {
		BeforeEach(func() {
			build(2, time.Millisecond)
			Expect(line.ApplyFaults([]int{1, 2})).To(Succeed())
			Expect(line.Start(context.Background())).To(Succeed())
			submitAll(types.Order{ID: 1, Priority: 1}, types.Order{ID: 2, Priority: 2})
		})

		It("holds orders in the queue instead of dropping them", func() {
			Eventually(func() int { return rec.Count(types.EventOrderRequeued) }).Should(BeNumerically(">=", 1))
			Consistently(processedCount, 50*time.Millisecond).Should(BeZero())
			Expect(line.Stats().Pending).To(Equal(2))
		})

		It("resumes once a machine is repaired", func() {
			Eventually(func() int { return rec.Count(types.EventOrderRequeued) }).Should(BeNumerically(">=", 1))
			Expect(line.RepairMachine(2)).To(Succeed())

			Eventually(processedCount).Should(Equal(2))
			for _, e := range rec.OfType(types.EventOrderProcessed) {
				Expect(e.MachineID).To(Equal(2))
			}
		})

		It("stops promptly and reports the leftovers as abandoned", func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			Expect(line.Stop(ctx)).To(Succeed())
			Expect(rec.OrderIDs(types.EventOrderAbandoned)).To(ConsistOf(1, 2))
			Expect(line.Submit(types.Order{ID: 3})).To(MatchError(engine.ErrLineStopped))
		})
	})

	Context("when a machine breaks while processing", func() {
		BeforeEach(func() { build(1, 40*time.Millisecond) })

		It("lets the in-flight order finish", func() {
			Expect(line.Start(context.Background())).To(Succeed())
			submitAll(types.Order{ID: 1, Priority: 1}, types.Order{ID: 2, Priority: 1})

			Eventually(func() int { return rec.Count(types.EventOrderProcessing) }).Should(Equal(1))
			Expect(line.BreakMachine(1)).To(Succeed())

			Eventually(processedCount).Should(Equal(1))
			Consistently(processedCount, 80*time.Millisecond).Should(Equal(1))
			Expect(rec.OrderIDs(types.EventOrderProcessed)).To(Equal([]int{1}))
		})
	})
})
