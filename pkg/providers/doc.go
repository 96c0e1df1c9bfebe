// Package providers groups the production clients behind the ports.TextGenerator,
// ports.MessageSender and ports.MailSender interfaces.
package providers
