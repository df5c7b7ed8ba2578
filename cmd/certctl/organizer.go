package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"eventcert/internal/auth"
	"eventcert/internal/config"
	"eventcert/internal/database"
)

type dbFlags struct {
	host     string
	port     int
	name     string
	user     string
	password string
	sslmode  string
}

func (f *dbFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.host, "db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
	cmd.Flags().IntVar(&f.port, "db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
	cmd.Flags().StringVar(&f.name, "db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
	cmd.Flags().StringVar(&f.user, "db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
	cmd.Flags().StringVar(&f.password, "db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
	cmd.Flags().StringVar(&f.sslmode, "db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")
}

func organizerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "organizer",
		Short: "Manage organizer accounts",
	}
	cmd.AddCommand(organizerCreateCmd())
	return cmd
}

func organizerCreateCmd() *cobra.Command {
	var (
		db         dbFlags
		mobile     string
		name       string
		email      string
		issueToken bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an organizer account, optionally printing an access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			mobile = strings.TrimSpace(mobile)
			if mobile == "" {
				return errors.New("missing required flag: --mobile")
			}

			dbCfg, err := loadDatabaseConfig(db)
			if err != nil {
				return fmt.Errorf("load database config: %w", err)
			}
			conn, err := database.InitDatabase(dbCfg)
			if err != nil {
				return fmt.Errorf("init database: %w", err)
			}
			if err := database.AutoMigrate(conn); err != nil {
				return fmt.Errorf("auto migrate: %w", err)
			}

			var existing database.Organizer
			switch err := conn.Where("mobile = ?", mobile).First(&existing).Error; {
			case err == nil:
				return fmt.Errorf("organizer with mobile %q already exists (id %d)", mobile, existing.ID)
			case errors.Is(err, gorm.ErrRecordNotFound):
			default:
				return fmt.Errorf("query organizer: %w", err)
			}

			organizer := database.Organizer{Mobile: mobile, Name: strings.TrimSpace(name)}
			if e := strings.TrimSpace(email); e != "" {
				organizer.Email = &e
			}
			if err := conn.Create(&organizer).Error; err != nil {
				return fmt.Errorf("create organizer: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "已创建组织者账号：\n")
			fmt.Fprintf(out, "ID: %d\n", organizer.ID)
			fmt.Fprintf(out, "手机号: %s\n", organizer.Mobile)

			if !issueToken {
				return nil
			}
			svc, err := auth.NewServiceFromConfig(config.AuthConfig{
				PrivateKeyPath: os.Getenv("AUTH_PRIVATE_KEY_PATH"),
				PublicKeyPath:  os.Getenv("AUTH_PUBLIC_KEY_PATH"),
				AccessTokenTTL: 12 * time.Hour,
			})
			if err != nil {
				return fmt.Errorf("init auth service: %w", err)
			}
			token, err := svc.IssueAccessToken(organizer.ID)
			if err != nil {
				return fmt.Errorf("issue access token: %w", err)
			}
			fmt.Fprintf(out, "访问令牌（%s 内有效）: %s\n", svc.AccessTokenTTL(), token)
			return nil
		},
	}
	db.register(cmd)
	cmd.Flags().StringVar(&mobile, "mobile", "", "组织者手机号（必填，用于验证码登录）")
	cmd.Flags().StringVar(&name, "name", "", "显示名称")
	cmd.Flags().StringVar(&email, "email", "", "联系邮箱")
	cmd.Flags().BoolVar(&issueToken, "issue-token", false, "创建后签发访问令牌（读取 AUTH_PRIVATE_KEY_PATH / AUTH_PUBLIC_KEY_PATH）")
	return cmd
}

func loadDatabaseConfig(f dbFlags) (config.DatabaseConfig, error) {
	host, port, name, user, password, sslmode := f.host, f.port, f.name, f.user, f.password, f.sslmode
	if strings.TrimSpace(host) == "" {
		host = os.Getenv("DATABASE_HOST")
	}
	if port <= 0 {
		if env := strings.TrimSpace(os.Getenv("DATABASE_PORT")); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
			}
			port = p
		}
	}
	if strings.TrimSpace(name) == "" {
		name = os.Getenv("POSTGRES_DB")
	}
	if strings.TrimSpace(user) == "" {
		user = os.Getenv("POSTGRES_USER")
	}
	if strings.TrimSpace(password) == "" {
		password = os.Getenv("POSTGRES_PASSWORD")
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = os.Getenv("DATABASE_SSLMODE")
	}

	if strings.TrimSpace(host) == "" {
		host = "localhost"
	}
	if port <= 0 {
		port = 5432
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = "disable"
	}
	if strings.TrimSpace(name) == "" {
		return config.DatabaseConfig{}, errors.New("database name is required (POSTGRES_DB)")
	}
	if strings.TrimSpace(user) == "" {
		return config.DatabaseConfig{}, errors.New("database user is required (POSTGRES_USER)")
	}
	if strings.TrimSpace(password) == "" {
		return config.DatabaseConfig{}, errors.New("database password is required (POSTGRES_PASSWORD)")
	}

	return config.DatabaseConfig{
		Host:     host,
		Port:     port,
		Name:     name,
		User:     user,
		Password: password,
		SSLMode:  sslmode,
		LogLevel: "warn",
	}, nil
}
