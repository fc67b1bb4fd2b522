package email

import (
	"fmt"
	"net/smtp"
)

// Sender is the dispatch surface the OTP handler and the notifier depend on.
type Sender interface {
	SendOTP(to, code string) error
	SendOrderConfirmation(to, orderID string, total float64, items []OrderItem) error
	SendShippingNotice(to, orderID, trackingNumber string) error
}

// Service sends mail over plain SMTP.
type Service struct {
	host string
	port string
	from string
}

func NewService(host, port, from string) *Service {
	return &Service{
		host: host,
		port: port,
		from: from,
	}
}

// SendOTP sends the verification code used to gate registration.
func (s *Service) SendOTP(to, code string) error {
	subject := "Your verification code"
	body := BuildOTPBody(code)
	return s.send(to, subject, body)
}

// SendOrderConfirmation sends an order confirmation email.
func (s *Service) SendOrderConfirmation(to, orderID string, total float64, items []OrderItem) error {
	subject := fmt.Sprintf("Order confirmation (order %s)", shortID(orderID))
	body := BuildOrderConfirmationBody(orderID, total, items)
	return s.send(to, subject, body)
}

// SendShippingNotice sends the tracking number once an order ships.
func (s *Service) SendShippingNotice(to, orderID, trackingNumber string) error {
	subject := fmt.Sprintf("Your order %s has shipped", shortID(orderID))
	body := BuildShippingNoticeBody(orderID, trackingNumber)
	return s.send(to, subject, body)
}

func shortID(orderID string) string {
	if len(orderID) > 8 {
		return orderID[:8]
	}
	return orderID
}

func (s *Service) send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return smtp.SendMail(addr, nil, s.from, []string{to}, []byte(msg))
}
