package sim

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("HookableBase", func() {
	var (
		hookable *HookableBase
	)

	BeforeEach(func() {
		hookable = NewHookableBase()
	})

	It("should invoke hooks in order", func() {
		var seen []string
		pos := &HookPos{Name: "Test"}

		hookable.AcceptHook(HookFunc(func(ctx HookCtx) {
			seen = append(seen, "first:"+ctx.Pos.Name)
		}))
		hookable.AcceptHook(HookFunc(func(ctx HookCtx) {
			seen = append(seen, "second:"+ctx.Item.(string))
		}))

		hookable.InvokeHook(HookCtx{Pos: pos, Item: "item"})

		Expect(hookable.NumHooks()).To(Equal(2))
		Expect(seen).To(Equal([]string{"first:Test", "second:item"}))
	})

	It("should allow concurrent invocation", func() {
		var (
			lock  sync.Mutex
			count int
			wg    sync.WaitGroup
		)

		hookable.AcceptHook(HookFunc(func(HookCtx) {
			lock.Lock()
			count++
			lock.Unlock()
		}))

		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				hookable.InvokeHook(HookCtx{})
			}()
		}
		wg.Wait()

		Expect(count).To(Equal(8))
	})
})
