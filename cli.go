package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile   string
	logger    *zap.Logger
	appConfig *Config
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "lncweb",
	Short: "LNC MW2200A Modbus TCP 監控服務",
	Long: `透過 LNC 控制器內建的 Modbus TCP 伺服器持續輪詢機台狀態,
提供狀態查詢 JSON API 與線圈命令派發。`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 載入配置 (除了 version 和 help 命令)。
		// 配置檔損壞時不可退回預設值對著錯誤的主機操作, 直接視為致命錯誤。
		if cmd.Name() != "version" && cmd.Name() != "help" && cmd.Name() != "generate" {
			var err error
			appConfig, err = LoadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("載入配置檔失敗: %w", err)
			}
		}
		if appConfig == nil {
			appConfig = DefaultConfig()
		}

		// 初始化日誌
		var err error
		logger, err = initLogger(appConfig.Logging)
		if err != nil {
			return fmt.Errorf("初始化日誌失敗: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// startCmd 啟動監控服務
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "啟動監控服務",
	Long:  "啟動背景輪詢與 Web API, 持續監控控制器狀態。",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 覆蓋 CLI 參數
		if host, _ := cmd.Flags().GetString("host"); host != "" {
			appConfig.Controller.Host = host
		}
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			appConfig.Controller.Port = port
		}
		if interval, _ := cmd.Flags().GetDuration("interval"); interval > 0 {
			appConfig.Controller.PollInterval = interval
		}

		logger.Info("啟動監控服務",
			zap.String("controller", fmt.Sprintf("%s:%d", appConfig.Controller.Host, appConfig.Controller.Port)),
			zap.Duration("poll_interval", appConfig.Controller.PollInterval),
		)

		monitor := NewMonitor(appConfig, logger)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		if err := monitor.Start(ctx); err != nil {
			return fmt.Errorf("啟動監控引擎失敗: %w", err)
		}

		var web *WebServer
		if appConfig.Web.Enabled {
			web = NewWebServer(monitor, logger.Named("web"))
			if err := web.Start(appConfig.Web.Host, appConfig.Web.Port); err != nil {
				logger.Warn("啟動 Web 伺服器失敗", zap.Error(err))
			}
		}

		// 等待信號
		sig := <-sigChan
		logger.Info("收到關閉信號", zap.String("signal", sig.String()))

		// 優雅關閉: 先停 Web, 再停輪詢器與連線
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if web != nil {
			if err := web.Stop(shutdownCtx); err != nil {
				logger.Warn("關閉 Web 伺服器失敗", zap.Error(err))
			}
		}

		if err := monitor.Stop(shutdownCtx); err != nil {
			logger.Error("關閉監控引擎失敗", zap.Error(err))
			return err
		}

		logger.Info("監控服務已停止")
		return nil
	},
}

// scanCmd 即時讀取
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "即時讀取暫存器與線圈",
	Long:  "繞過快照快取, 立即對控制器執行一次原始讀取, 供排障使用。",
	RunE: func(cmd *cobra.Command, args []string) error {
		monitor := NewMonitor(appConfig, logger)

		scan, err := monitor.ScanRaw()
		if err != nil {
			return fmt.Errorf("讀取失敗: %w", err)
		}

		fmt.Printf("保持暫存器 (R[%d..%d]):\n", RegBlockStart, RegBlockStart+RegBlockCount-1)
		for i, v := range scan.Registers {
			fmt.Printf("  R[%2d] = %5d (0x%04X)\n", RegBlockStart+i, v, v)
		}
		fmt.Printf("線圈 (%d..%d):\n", CoilBlockStart, CoilBlockStart+CoilBlockCount-1)
		for i, v := range scan.Coils {
			fmt.Printf("  C[%d] = %v\n", CoilBlockStart+i, v)
		}
		return nil
	},
}

// commandCmd 派發單一命令
var commandCmd = &cobra.Command{
	Use:   "command [name]",
	Short: "派發操作命令",
	Long:  "連線控制器並寫入命令對應的線圈, 可用命令: cycle_start, feed_hold, reset, spindle_cw, spindle_ccw, coolant, estop, lot_reset。",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		off, _ := cmd.Flags().GetBool("off")
		value := !off

		monitor := NewMonitor(appConfig, logger)
		if err := monitor.Connect(); err != nil {
			return fmt.Errorf("連線控制器失敗: %w", err)
		}

		req := CommandRequest{Command: args[0], Value: &value}
		if err := monitor.Dispatch(req); err != nil {
			return fmt.Errorf("命令派發失敗: %w", err)
		}

		fmt.Printf("已派發命令 %s = %v\n", args[0], value)
		return nil
	},
}

// lotCmd 批次命令組
var lotCmd = &cobra.Command{
	Use:   "lot",
	Short: "批次管理命令",
	Long:  "管理批次目標與計數。",
}

// lotSetTargetCmd 設定批次目標
var lotSetTargetCmd = &cobra.Command{
	Use:   "set-target [target]",
	Short: "設定批次目標",
	Long:  "寫入批次目標保持暫存器, 目標必須為非負整數。",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var target int
		if _, err := fmt.Sscanf(args[0], "%d", &target); err != nil {
			return fmt.Errorf("無效的目標值: %s", args[0])
		}

		monitor := NewMonitor(appConfig, logger)
		if err := monitor.Connect(); err != nil {
			return fmt.Errorf("連線控制器失敗: %w", err)
		}

		if err := monitor.SetLotTarget(target); err != nil {
			return fmt.Errorf("設定批次目標失敗: %w", err)
		}

		fmt.Printf("批次目標已設定為 %d\n", target)
		return nil
	},
}

// simCmd 啟動模擬器
var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "啟動內建控制器模擬器",
	Long:  "以 MW2200A 暫存器對照表模擬控制器, 供沒有實機時開發測試使用。",
	RunE: func(cmd *cobra.Command, args []string) error {
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			appConfig.Sim.Port = port
		}

		sim := NewSimulator(appConfig.Sim, logger.Named("sim"))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		if err := sim.Start(ctx); err != nil {
			return fmt.Errorf("啟動模擬器失敗: %w", err)
		}

		fmt.Printf("模擬器監聽於 %s (Ctrl-C 停止)\n", sim.Addr())

		sig := <-sigChan
		logger.Info("收到關閉信號", zap.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		return sim.Stop(shutdownCtx)
	},
}

// configCmd 配置命令組
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "配置管理命令",
	Long:  "管理配置檔。",
}

// configValidateCmd 驗證配置
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "驗證配置檔",
	Long:  "驗證指定的配置檔是否有效。",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("配置驗證失敗: %w", err)
		}

		fmt.Println("配置驗證通過")
		fmt.Printf("  Controller: %s:%d (unit %d)\n", cfg.Controller.Host, cfg.Controller.Port, cfg.Controller.UnitID)
		fmt.Printf("  Poll Interval: %v\n", cfg.Controller.PollInterval)
		fmt.Printf("  I/O Timeout: %v\n", cfg.Controller.IOTimeout)
		fmt.Printf("  Web: enabled=%v %s:%d\n", cfg.Web.Enabled, cfg.Web.Host, cfg.Web.Port)
		return nil
	},
}

// configGenerateCmd 生成配置
var configGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "生成範例配置",
	Long:  "生成範例配置檔。",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = "config.json"
		}

		cfg := DefaultConfig()
		if err := cfg.SaveConfig(output); err != nil {
			return fmt.Errorf("生成配置失敗: %w", err)
		}

		fmt.Printf("範例配置已生成: %s\n", output)
		return nil
	},
}

// versionCmd 版本命令
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "顯示版本資訊",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lncweb version %s\n", Version)
		fmt.Printf("  Build: %s\n", BuildTime)
		fmt.Printf("  Commit: %s\n", GitCommit)
	},
}

func init() {
	// 全域 flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置檔路徑")

	// start 命令 flags
	startCmd.Flags().String("host", "", "控制器主機位址")
	startCmd.Flags().IntP("port", "p", 0, "控制器埠號")
	startCmd.Flags().DurationP("interval", "i", 0, "輪詢間隔")

	// command 命令 flags
	commandCmd.Flags().Bool("off", false, "寫入 false 而非 true")

	// sim 命令 flags
	simCmd.Flags().IntP("port", "p", 0, "模擬器監聽埠號")

	// config 命令 flags
	configGenerateCmd.Flags().StringP("output", "o", "config.json", "輸出檔案路徑")

	// 組裝命令樹
	lotCmd.AddCommand(lotSetTargetCmd)
	configCmd.AddCommand(configValidateCmd, configGenerateCmd)

	rootCmd.AddCommand(
		startCmd,
		scanCmd,
		commandCmd,
		lotCmd,
		simCmd,
		configCmd,
		versionCmd,
	)
}

func initLogger(cfg LoggingConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()

	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err == nil {
		zapCfg.Level = level
	}

	output := cfg.OutputPath
	if output == "" {
		output = "stdout"
	}
	zapCfg.OutputPaths = []string{output}
	zapCfg.ErrorOutputPaths = []string{"stderr"}

	return zapCfg.Build()
}

// Execute 執行 CLI
func Execute() error {
	return rootCmd.Execute()
}
