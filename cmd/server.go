package cmd

import (
	"MixMerge/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动MixMerge服务器",
	Long:  `启动MixMerge音频合并系统的HTTP服务器，提供上传、合并任务和进度查询API`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
