package input

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/lumacast/lumacast/config"
	"github.com/rs/zerolog"
)

// Injector dispatches one Task to an external input-injection tool
// subprocess. A spawn failure is logged and otherwise ignored — it must
// never back-pressure the worker loop feeding it.
type Injector struct {
	ToolPath   string
	DisplayNum string
	Registry   *config.Registry
	Log        zerolog.Logger
}

func (inj *Injector) Dispatch(t Task) {
	switch t.Kind {
	case KeyDown, KeyUp:
		mapped, ok := MapKey(t.Key)
		if !ok {
			return
		}
		action := "keydown"
		if t.Kind == KeyUp {
			action = "keyup"
		}
		inj.run(action, mapped)
	case Mouse:
		screen := inj.Registry.Screen()
		x := int(t.NX * float64(screen.Width))
		y := int(t.NY * float64(screen.Height))
		inj.run("mousemove", strconv.Itoa(x), strconv.Itoa(y))
	case Button:
		action := "mouseup"
		if t.Down {
			action = "mousedown"
		}
		inj.run(action, strconv.Itoa(t.Button))
	}
}

func (inj *Injector) run(args ...string) {
	cmd := exec.Command(inj.ToolPath, args...)
	cmd.Env = append(os.Environ(), fmt.Sprintf("DISPLAY=:%s", inj.DisplayNum))
	if err := cmd.Run(); err != nil {
		inj.Log.Warn().Err(err).Strs("args", args).Msg("input injection failed")
	}
}
