package worker

import "time"

// ChainHooks は複数のフックを順に呼び出す一つのフックにまとめる
func ChainHooks(hooks ...Hooks) Hooks {
	return Hooks{
		OnSubmit: func(info TaskInfo) {
			for _, h := range hooks {
				if h.OnSubmit != nil {
					h.OnSubmit(info)
				}
			}
		},
		OnStart: func(info TaskInfo) {
			for _, h := range hooks {
				if h.OnStart != nil {
					h.OnStart(info)
				}
			}
		},
		OnFinish: func(info TaskInfo, err error, elapsed time.Duration) {
			for _, h := range hooks {
				if h.OnFinish != nil {
					h.OnFinish(info, err, elapsed)
				}
			}
		},
		OnAbandon: func(info TaskInfo) {
			for _, h := range hooks {
				if h.OnAbandon != nil {
					h.OnAbandon(info)
				}
			}
		},
	}
}
