package decor

import "github.com/bnema/wldecor"

// disabledStrategy leaves the window borderless.
type disabledStrategy struct{}

func (disabledStrategy) Type() Type { return Disabled }
func (disabledStrategy) SetTitle(string) {}
func (disabledStrategy) SetMinimized() {}
func (disabledStrategy) SetMaximized() {}
func (disabledStrategy) SetFullscreen(*wldecor.Output) {}
func (disabledStrategy) Restore() {}
func (disabledStrategy) Resize(int32, int32) {}
func (disabledStrategy) Destroy() {}
