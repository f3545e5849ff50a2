package models

import (
	"errors"
	"fmt"
)

var (
	// ErrDataUnavailable рыночные данные не получены
	ErrDataUnavailable = errors.New("рыночные данные недоступны")
	// ErrInsufficientData свечей меньше, чем нужно для прогрева индикаторов
	ErrInsufficientData = fmt.Errorf("%w: недостаточно свечей", ErrDataUnavailable)
	// ErrInvalidParameters некорректные параметры риска или позиции
	ErrInvalidParameters = errors.New("некорректные параметры")
	// ErrNotificationFailure уведомление не доставлено, анализ при этом не прерывается
	ErrNotificationFailure = errors.New("ошибка отправки уведомления")
)
