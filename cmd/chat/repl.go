package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"bitcoin-gpt-client/internal/bootstrap"
	"bitcoin-gpt-client/internal/dto"
	"bitcoin-gpt-client/internal/service"

	"github.com/fatih/color"
)

// app is the terminal presentation layer. All state lives in the
// services; this file only prompts, prints and routes commands.
type app struct {
	c      *bootstrap.Container
	reader *bufio.Reader
	quit   bool
}

func newApp(c *bootstrap.Container) *app {
	return &app{c: c, reader: bufio.NewReader(os.Stdin)}
}

func (a *app) run() error {
	color.Cyan("₿ Bitcoin GPT")

	for !a.quit {
		if a.c.AuthService.IsAuthenticated() {
			a.chatLoop()
		} else {
			a.authLoop()
		}
	}
	return nil
}

func (a *app) prompt(label string) string {
	fmt.Print(label)
	line, _ := a.reader.ReadString('\n')
	return strings.TrimSpace(line)
}

// --- Authentication flow ---

func (a *app) authLoop() {
	auth := a.c.AuthService

	for !a.quit && !auth.IsAuthenticated() {
		switch auth.Step() {
		case service.StepAuth:
			a.handleEntry()
		case service.StepOTP:
			a.handleOtp()
		case service.StepForgot:
			a.handleForgotEmail()
		case service.StepReset:
			a.handleReset()
		case service.StepSuccess:
			return
		}
	}
}

func (a *app) handleEntry() {
	choice := a.prompt("\n[login / register / forgot / quit] > ")
	switch choice {
	case "login":
		a.handleLogin()
	case "register":
		a.handleRegister()
	case "forgot":
		a.c.AuthService.BeginForgotPassword()
	case "quit", "exit":
		a.quit = true
	default:
		color.Yellow("Unknown choice: %s", choice)
	}
}

func (a *app) handleLogin() {
	email := a.prompt("Email: ")
	password := a.prompt("Password: ")

	if err := a.c.AuthService.Login(context.Background(), email, password); err != nil {
		color.Red("%s", errorText(err, "Error logging in. Please try again"))
		return
	}

	color.Green("Login successful")
	// Brief pause in place of the web client's success animation.
	time.Sleep(1 * time.Second)
}

func (a *app) handleRegister() {
	name := a.prompt("Name: ")
	email := a.prompt("Email: ")
	password := a.prompt("Password: ")
	agreed := strings.EqualFold(a.prompt("I am 18 years or older [y/N]: "), "y")

	outcome, err := a.c.AuthService.Register(context.Background(), name, email, password, agreed)
	if err != nil {
		color.Red("%s", errorText(err, "Registration failed. Please try again."))
		return
	}
	if outcome.AlreadyRegistered {
		color.Yellow("OTP re-sent. Please verify your email.")
	} else {
		color.Green("Registration successful. OTP sent to your email.")
	}
}

func (a *app) handleOtp() {
	auth := a.c.AuthService
	color.Cyan("An OTP has been sent to %s.", auth.RegisteredEmail())
	code := a.prompt("OTP [or 'resend' / 'back']: ")

	switch code {
	case "back":
		auth.Back()
		return
	case "resend":
		if err := auth.ResendOtp(context.Background()); err != nil {
			color.Red("%s", errorText(err, "Failed to resend OTP"))
		} else {
			color.Green("OTP resent successfully")
		}
		return
	}

	if err := auth.VerifyOtp(context.Background(), code); err != nil {
		color.Red("%s", errorText(err, "Invalid OTP. Please try again."))
		return
	}

	color.Green("Email verified successfully! Please login.")
	auth.CompleteVerification()
}

func (a *app) handleForgotEmail() {
	email := a.prompt("Registered Email [or 'back']: ")
	if email == "back" {
		a.c.AuthService.Back()
		return
	}
	if err := a.c.AuthService.ForgotPassword(context.Background(), email); err != nil {
		color.Red("%s", errorText(err, "Email not found or server error"))
		return
	}
	color.Green("OTP sent to your email")
}

func (a *app) handleReset() {
	auth := a.c.AuthService
	otp := a.prompt("6-digit OTP [or 'back']: ")
	if otp == "back" {
		auth.Back()
		return
	}
	newPassword := a.prompt("New Password: ")

	if err := auth.ResetPassword(context.Background(), auth.ForgotEmail(), otp, newPassword); err != nil {
		color.Red("%s", errorText(err, "Failed to reset password"))
		return
	}
	color.Green("Password reset successful. Please login.")
}

// --- Chat flow ---

func (a *app) chatLoop() {
	ctx := context.Background()
	chat := a.c.ChatService
	sessions := a.c.SessionService

	if user, ok := a.c.AuthService.CurrentUser(); ok && user.Name != "" {
		color.Cyan("Welcome back, %s.", user.Name)
	}

	if err := sessions.FetchSessions(ctx); err != nil {
		color.Yellow("Could not load session history: %v", err)
	}
	if err := chat.Bootstrap(ctx); err != nil {
		color.Red("Could not start a session: %v", err)
	}

	color.White("Try: %s", strings.Join(service.Suggestions, " | "))
	fmt.Println("Commands: /new /sessions /switch N /rename N TITLE /delete N /search Q /feedback TEXT /logout /quit")

	for !a.quit && a.c.AuthService.IsAuthenticated() {
		line := a.prompt("\nyou > ")
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			a.handleCommand(ctx, line)
			continue
		}

		if chat.InputDisabled() {
			color.Yellow("Hold on, the session is not ready for input yet.")
			continue
		}
		if err := chat.SendMessage(ctx, line); err != nil {
			color.Red("%s", errorText(err, "Failed to send message"))
			continue
		}
		a.printLastReply()
	}
}

func (a *app) handleCommand(ctx context.Context, line string) {
	chat := a.c.ChatService
	sessions := a.c.SessionService

	cmd := line
	arg := ""
	if idx := strings.IndexByte(line, ' '); idx > 0 {
		cmd, arg = line[:idx], strings.TrimSpace(line[idx+1:])
	}

	switch cmd {
	case "/new":
		if err := chat.NewChat(ctx); err != nil {
			if errors.Is(err, service.ErrSessionUnused) {
				color.Yellow("You haven't used the current chat yet.")
			} else {
				color.Red("%v", err)
			}
			return
		}
		color.Green("Started a new chat.")

	case "/sessions":
		a.printSessions(sessions.Sessions())

	case "/search":
		a.printSessions(sessions.FilterSessions(arg))

	case "/switch":
		if sess, ok := a.sessionByIndex(arg); ok {
			chat.SwitchSession(sess.SessionId)
			color.Green("Switched to %s", displayTitle(sess))
		}

	case "/rename":
		parts := strings.SplitN(arg, " ", 2)
		if len(parts) < 2 {
			color.Yellow("Usage: /rename N TITLE")
			return
		}
		if sess, ok := a.sessionByIndex(parts[0]); ok {
			if err := sessions.RenameSession(ctx, sess.SessionId, parts[1]); err != nil {
				color.Red("Rename failed: %v", err)
			}
		}

	case "/delete":
		if sess, ok := a.sessionByIndex(arg); ok {
			sessions.DeleteSession(ctx, sess.SessionId)
			color.Green("Deleted %s", displayTitle(sess))
		}

	case "/feedback":
		if err := chat.SubmitFeedback(ctx, arg); err != nil {
			color.Red("%s", errorText(err, "Error submitting feedback"))
		} else {
			color.Green("Feedback submitted successfully")
		}

	case "/logout":
		a.c.AuthService.Logout()
		color.Green("Logged out.")

	case "/quit", "/exit":
		a.quit = true

	default:
		color.Yellow("Unknown command: %s", cmd)
	}
}

func (a *app) sessionByIndex(arg string) (dto.Session, bool) {
	idx, err := strconv.Atoi(arg)
	all := a.c.SessionService.Sessions()
	if err != nil || idx < 1 || idx > len(all) {
		color.Yellow("Pick a session number from /sessions")
		return dto.Session{}, false
	}
	return all[idx-1], true
}

func (a *app) printSessions(list []dto.Session) {
	if len(list) == 0 {
		fmt.Println("No sessions found")
		return
	}
	current := a.c.SessionService.CurrentSessionID()
	for i, sess := range list {
		marker := "  "
		if sess.SessionId == current {
			marker = "* "
		}
		fmt.Printf("%s%d. %s\n", marker, i+1, displayTitle(sess))
	}
}

func (a *app) printLastReply() {
	messages := a.c.ChatService.Messages()
	if len(messages) == 0 {
		return
	}
	last := messages[len(messages)-1]
	if last.Role != dto.RoleAssistant {
		return
	}

	fmt.Println()
	color.Cyan("assistant [%s]", last.Timestamp.Format("15:04"))
	fmt.Println(last.Content)

	if last.ExternalLink != nil {
		color.White("↗ %s — %s (%s)", last.ExternalLink.Title, last.ExternalLink.Description, last.ExternalLink.URL)
	}
	if len(last.Sources) > 0 {
		color.White("Sources:")
		for _, src := range last.Sources {
			fmt.Printf("  - %s (%s)\n", src.Title, src.URL)
		}
	}
}

func displayTitle(sess dto.Session) string {
	if strings.TrimSpace(sess.Title) == "" {
		return "New Chat"
	}
	return sess.Title
}

func errorText(err error, fallback string) string {
	if err == nil || err.Error() == "" {
		return fallback
	}
	return err.Error()
}
