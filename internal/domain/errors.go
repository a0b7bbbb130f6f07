package domain

import "errors"

var (
	// ErrNotFound возвращается когда запись не найдена
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput возвращается при некорректных входных данных
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientFunds возвращается при недостаточном балансе агента
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrSafetyRejected возвращается когда сделка отклонена safety validator
	ErrSafetyRejected = errors.New("trade rejected by safety validator")

	// ErrTradingHalted возвращается когда активирован system-wide halt
	ErrTradingHalted = errors.New("trading halted")

	// ErrMarketClosed возвращается при попытке исполнения вне торговых часов
	ErrMarketClosed = errors.New("market closed")

	// ErrCycleInProgress возвращается при попытке запустить перекрывающийся цикл
	ErrCycleInProgress = errors.New("trading cycle already in progress")

	// ErrNoMarketData возвращается когда не удалось получить никаких рыночных данных
	ErrNoMarketData = errors.New("no market data available")

	// ErrUnauthorized возвращается при неверном admin secret
	ErrUnauthorized = errors.New("unauthorized")
)
