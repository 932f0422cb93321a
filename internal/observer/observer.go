package observer

import "attachget/internal/model"

// Observer получает уведомление о каждом обработанном вложении.
// Вызывается конкурентно из разных задач.
type Observer interface {
	Update(file model.File)
}

// Func позволяет использовать функцию как Observer.
type Func func(file model.File)

func (f Func) Update(file model.File) {
	f(file)
}
