package workload

import (
	"context"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/vmsim/mem/vm"
	"github.com/sarchlab/vmsim/mem/vm/vmm"
)

var _ = Describe("Config", func() {
	It("should accept the default", func() {
		Expect(DefaultConfig().Validate()).To(Succeed())
	})

	DescribeTable("should reject",
		func(modify func(*Config)) {
			cfg := DefaultConfig()
			modify(&cfg)
			Expect(cfg.Validate()).NotTo(Succeed())
		},
		Entry("no process", func(c *Config) { c.NumProcesses = 0 }),
		Entry("sections too large", func(c *Config) { c.TextPages = 40 }),
		Entry("no writable page", func(c *Config) {
			c.TextPages = 30
			c.DataPages = 2
		}),
		Entry("bad write ratio", func(c *Config) { c.WriteRatio = 1.5 }),
		Entry("too many probes", func(c *Config) { c.ProtectionProbes = 5 }),
	)
})

var _ = Describe("Run", func() {
	var manager *vmm.Comp

	BeforeEach(func() {
		manager = vmm.MakeBuilder().
			WithNumFrames(8).
			WithLog2PageSize(6).
			WithTLBSize(4).
			Build("VMM")
	})

	AfterEach(func() {
		Expect(manager.CheckInvariants()).To(Succeed())
		Expect(manager.Processes()).To(BeZero())
		Expect(manager.FreeFrames()).To(HaveLen(8))
	})

	It("should read back every byte written while pages are evicted", func() {
		cfg := DefaultConfig()
		cfg.AccessesPerProcess = 300

		var progress atomic.Uint64
		result, err := Run(context.Background(), manager, cfg,
			func() { progress.Add(1) })

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Accesses).To(Equal(uint64(1200)))
		Expect(progress.Load()).To(Equal(uint64(1200)))
		Expect(result.Mismatches).To(BeZero())
		Expect(result.Terminated).To(BeEmpty())

		stats := manager.Stats()
		Expect(stats.Evictions).NotTo(BeZero())
		Expect(stats.SwapIns).NotTo(BeZero())
		Expect(stats.SectionLoads).NotTo(BeZero())
	})

	It("should terminate processes that write their text", func() {
		cfg := DefaultConfig()
		cfg.AccessesPerProcess = 50
		cfg.ProtectionProbes = 2

		result, err := Run(context.Background(), manager, cfg, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Mismatches).To(BeZero())
		Expect(result.TerminatedPIDs()).To(Equal([]vm.PID{1, 2}))
		Expect(result.Terminated[1]).To(MatchError(vm.ErrProtectionViolation))
		Expect(manager.Stats().ProtectionFaults).To(Equal(uint64(2)))
	})

	It("should stop when cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result, err := Run(ctx, manager, DefaultConfig(), nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Accesses).To(BeZero())
	})

	It("should refuse an invalid configuration", func() {
		cfg := DefaultConfig()
		cfg.NumProcesses = 0

		_, err := Run(context.Background(), manager, cfg, nil)

		Expect(err).To(HaveOccurred())
		Expect(manager.Processes()).To(BeZero())
	})
})
