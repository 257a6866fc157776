package commentsync

import "sync"

// State - состояние элемента управления, который отправляет мутацию.
type State int

const (
	Idle    State = iota // начальное, сюда же возвращаемся после успеха
	Pending              // запрос отправлен, ждем ответа сервера
	Failed               // сервер или сеть вернули ошибку, см. Err
)

func (s State) String() string {
	names := [...]string{"idle", "pending", "failed"}
	if s < 0 || int(s) >= len(names) {
		return "unknown"
	}
	return names[s]
}

// Affordance хранит состояние одной мутации, принадлежащей
// элементу интерфейса (форма ответа, кнопка лайка и т.п.),
// чтобы его можно было заблокировать на время запроса.
//
// Повторные отправки не отбрасываются: состоянием
// владеет последняя отправленная мутация.
type Affordance struct {
	mu    sync.Mutex
	state State
	err   error
	seq   uint64
}

func (a *Affordance) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Err возвращает ошибку последней неудачной мутации,
// nil в других состояниях.
func (a *Affordance) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Pending сообщает, что элемент стоит заблокировать.
func (a *Affordance) Pending() bool {
	return a.State() == Pending
}

func (a *Affordance) begin() uint64 {
	if a == nil {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	a.state = Pending
	a.err = nil
	return a.seq
}

func (a *Affordance) finish(seq uint64, err error) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if seq != a.seq {
		return
	}
	if err != nil {
		a.state = Failed
		a.err = err
		return
	}
	a.state = Idle
}
