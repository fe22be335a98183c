package main

import (
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/matryer/is"
)

func TestViewStateWiresSendWhileScrolling(t *testing.T) {
	is := is.New(t)

	view := newViewState()

	var mu sync.Mutex
	var got []tea.Msg
	var wg sync.WaitGroup

	// the engine scrolls while the program hook is being wired
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := int64(0); i < 100; i++ {
			view.ScrollTo(i)
		}
	}()

	view.notify(func(msg tea.Msg) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, msg)
	})
	wg.Wait()

	view.ScrollTo(7)
	is.Equal(view.offset.Load(), int64(7))

	mu.Lock()
	defer mu.Unlock()
	is.True(len(got) > 0)
	_, ok := got[len(got)-1].(refreshMsg)
	is.True(ok)
}
