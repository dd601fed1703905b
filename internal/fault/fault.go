package fault

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"taskpool/internal/events"
	"taskpool/internal/logger"
)

// ErrInjected は注入されたエラー
var ErrInjected = errors.New("injected fault")

// FaultType は障害の種類を表す
type FaultType int

const (
	FaultError FaultType = iota
	FaultPanic
	FaultDelay
)

func (f FaultType) String() string {
	switch f {
	case FaultError:
		return "error"
	case FaultPanic:
		return "panic"
	case FaultDelay:
		return "delay"
	default:
		return "unknown"
	}
}

// eventType はイベント用の障害タイプを返す
func (f FaultType) eventType() events.FaultType {
	switch f {
	case FaultPanic:
		return events.FaultTypePanic
	case FaultDelay:
		return events.FaultTypeDelay
	default:
		return events.FaultTypeError
	}
}

// Config はInjectorの設定
type Config struct {
	Rate          float64       // 障害注入率（0.0〜1.0）
	FaultTypes    []FaultType   // 有効な障害タイプ
	DelayDuration time.Duration // Delay障害時の遅延時間
	Seed          int64         // 乱数シード（0で現在時刻）
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Rate:          0.05,
		FaultTypes:    []FaultType{FaultError, FaultPanic, FaultDelay},
		DelayDuration: 20 * time.Millisecond,
	}
}

// Stats は障害注入の統計情報
type Stats struct {
	TotalFaults uint64            `json:"total_faults"`
	ByType      map[string]uint64 `json:"faults_by_type"`
}

// Injector はタスクに障害を注入する
type Injector struct {
	config   Config
	eventBus *events.Bus

	mu          sync.Mutex
	rng         *rand.Rand
	faultCount  uint64
	faultByType map[FaultType]uint64
}

// New は新しいInjectorを作成する
func New(config Config) *Injector {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Injector{
		config:      config,
		rng:         rand.New(rand.NewSource(seed)),
		faultByType: make(map[FaultType]uint64),
	}
}

// SetEventBus はイベントバスを設定する
func (i *Injector) SetEventBus(bus *events.Bus) {
	i.eventBus = bus
}

// publishEvent はイベントを発行する
func (i *Injector) publishEvent(event events.Event) {
	if i.eventBus != nil {
		i.eventBus.Publish(event)
	}
}

// decide は障害を注入するかどうかと、その種類を決める
func (i *Injector) decide() (FaultType, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.config.Rate <= 0 || len(i.config.FaultTypes) == 0 {
		return 0, false
	}
	if i.rng.Float64() >= i.config.Rate {
		return 0, false
	}

	f := i.config.FaultTypes[i.rng.Intn(len(i.config.FaultTypes))]
	i.faultCount++
	i.faultByType[f]++
	return f, true
}

// Wrap は実行のたびに障害注入を判定する関数を返す
func (i *Injector) Wrap(fn func() error) func() error {
	return func() error {
		f, ok := i.decide()
		if !ok {
			return fn()
		}

		switch f {
		case FaultPanic:
			i.publishEvent(events.NewFaultInjectedEvent(events.FaultTypePanic))
			logger.Debug("fault", "injecting panic")
			panic(ErrInjected)
		case FaultDelay:
			i.publishEvent(events.NewFaultInjectedEventWithDelay(i.config.DelayDuration))
			time.Sleep(i.config.DelayDuration)
			return fn()
		default:
			i.publishEvent(events.NewFaultInjectedEvent(f.eventType()))
			return ErrInjected
		}
	}
}

// FaultCount は注入回数を返す
func (i *Injector) FaultCount() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.faultCount
}

// Stats は注入統計を返す
func (i *Injector) Stats() Stats {
	i.mu.Lock()
	defer i.mu.Unlock()

	byType := make(map[string]uint64)
	for f, count := range i.faultByType {
		byType[f.String()] = count
	}

	return Stats{
		TotalFaults: i.faultCount,
		ByType:      byType,
	}
}

// ParseFaultTypes は文字列の障害タイプをパースする
func ParseFaultTypes(names []string) ([]FaultType, error) {
	var types []FaultType
	for _, name := range names {
		switch name {
		case "error":
			types = append(types, FaultError)
		case "panic":
			types = append(types, FaultPanic)
		case "delay":
			types = append(types, FaultDelay)
		default:
			return nil, errors.New("unknown fault type: " + name)
		}
	}
	return types, nil
}
