// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package wsi

import (
	"errors"
	"runtime"

	glfw "github.com/go-gl/glfw/v3.3/glfw"
	vulkan "github.com/vulkan-go/vulkan"
)

func init() {
	// GLFW requires that its windowing calls be made from the
	// thread that initialized it.
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		runtime.UnlockOSThread()
		initDummy()
		return
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Visible, glfw.False)
	newWindow = newWindowGLFW
	dispatch = glfw.PollEvents
	setAppName = setAppNameGLFW
	platform = GLFW
}

var errMissing = errors.New("no wsi implementation")

// initDummy installs a no-op implementation, used when GLFW
// could not be initialized (e.g. no display available).
func initDummy() {
	newWindow = newWindowDummy
	dispatch = dispatchDummy
	setAppName = setAppNameDummy
	platform = None
}

func newWindowDummy(int, int, string) (Window, error) {
	return nil, errMissing
}

func dispatchDummy() {}

// setAppNameGLFW is a no-op: GLFW has no concept of a global
// application identifier distinct from a window's title.
func setAppNameGLFW(string) {}

func setAppNameDummy(string) {}

// window implements Window on top of a *glfw.Window.
type window struct {
	win           *glfw.Window
	width, height int
	title         string
}

// newWindowGLFW creates a new window.
func newWindowGLFW(width, height int, title string) (Window, error) {
	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return nil, err
	}
	w := &window{win: win, width: width, height: height, title: title}

	win.SetCloseCallback(func(*glfw.Window) {
		if windowHandler != nil {
			windowHandler.WindowClose(w)
		}
	})
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.width = width
		w.height = height
		if windowHandler != nil {
			windowHandler.WindowResize(w, width, height)
		}
	})
	win.SetFocusCallback(func(_ *glfw.Window, focused bool) {
		if keyboardHandler == nil {
			return
		}
		if focused {
			keyboardHandler.KeyboardIn(w)
		} else {
			keyboardHandler.KeyboardOut(w)
		}
	})
	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, mods glfw.ModifierKey) {
		if keyboardHandler == nil || action == glfw.Repeat {
			return
		}
		keyboardHandler.KeyboardKey(keyFromGLFW(key), action == glfw.Press, modFromGLFW(mods))
	})
	win.SetCursorEnterCallback(func(_ *glfw.Window, entered bool) {
		if pointerHandler == nil {
			return
		}
		if entered {
			x, y := win.GetCursorPos()
			pointerHandler.PointerIn(w, int(x), int(y))
		} else {
			pointerHandler.PointerOut(w)
		}
	})
	win.SetCursorPosCallback(func(_ *glfw.Window, xpos, ypos float64) {
		if pointerHandler != nil {
			pointerHandler.PointerMotion(int(xpos), int(ypos))
		}
	})
	win.SetMouseButtonCallback(func(_ *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
		if pointerHandler == nil {
			return
		}
		x, y := win.GetCursorPos()
		pointerHandler.PointerButton(btnFromGLFW(button), action == glfw.Press, int(x), int(y))
	})

	return w, nil
}

func (w *window) Map() error {
	w.win.Show()
	return nil
}

func (w *window) Unmap() error {
	w.win.Hide()
	return nil
}

func (w *window) Resize(width, height int) error {
	w.win.SetSize(width, height)
	w.width = width
	w.height = height
	return nil
}

func (w *window) SetTitle(title string) error {
	w.win.SetTitle(title)
	w.title = title
	return nil
}

func (w *window) Close() {
	w.win.Destroy()
	closeWindow(w)
}

func (w *window) Width() int { return w.width }

func (w *window) Height() int { return w.height }

func (w *window) Title() string { return w.title }

// CreateSurface creates a vulkan.Surface bound to the window.
// GLFW selects the platform-appropriate VK_KHR_*_surface call
// (XCB, Wayland, Win32, ...) on its own, so the driver need not
// dispatch on the underlying platform itself.
func (w *window) CreateSurface(inst vulkan.Instance) (vulkan.Surface, error) {
	ptr, err := w.win.CreateWindowSurface(inst, nil)
	if err != nil {
		return vulkan.Surface(vulkan.NullHandle), err
	}
	return vulkan.SurfaceFromPointer(ptr), nil
}
