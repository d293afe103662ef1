// Package job runs background and periodic tasks on River, a Postgres-backed
// queue.
//
// Tasks are plain types with a Name and a typed Handle method; the payload
// is serialised as JSON:
//
//	type SendMagicLink struct{ mailer *mailer.Mailer }
//
//	func (t *SendMagicLink) Name() string { return "send_magic_link" }
//	func (t *SendMagicLink) Handle(ctx context.Context, p MagicLinkPayload) error { ... }
//
//	m, err := job.NewManager(pool,
//	    job.WithTask[tasks.MagicLinkPayload](tasks.NewSendMagicLink(mail)),
//	    job.WithScheduledTask(tasks.NewCleanupSessions(store)),
//	)
//
// Periodic tasks declare a five-field cron expression through Schedule().
// [Migrate] creates River's own tables and must run before [Manager.Start].
//
// [Inline] executes tasks synchronously in the calling goroutine and is
// meant for tests and one-off commands.
package job
