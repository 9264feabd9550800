package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"MixMerge/client"

	"github.com/spf13/cobra"
)

var (
	pollServer  string
	pollToken   string
	pollJobIDs  []int64
	pollTimeout time.Duration
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "轮询合并任务进度",
	Long:  `以固定周期轮询服务器上的合并任务，直到所有任务进入完成或失败状态。`,
	Run: func(cmd *cobra.Command, args []string) {
		if pollToken == "" {
			fmt.Println("请通过 --token 提供登录后获得的JWT")
			os.Exit(1)
		}

		p := client.NewPoller(pollServer, pollToken)
		p.OnUpdate = func(jobs []client.Job) {
			for _, j := range jobs {
				fmt.Printf("[%s] #%d %-24s %3d%%\n", j.Status, j.ID, j.Name, j.Progress)
			}
			fmt.Println("---")
		}

		ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
		defer cancel()

		final, err := p.Wait(ctx, pollJobIDs)
		if err != nil {
			log.Fatalf("轮询失败: %v", err)
		}

		fmt.Println("所有任务已结束:")
		for _, j := range final {
			if j.OutputFile != "" {
				fmt.Printf("  #%d %s -> /static/merged/%s\n", j.ID, j.Status, j.OutputFile)
			} else {
				fmt.Printf("  #%d %s\n", j.ID, j.Status)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(pollCmd)

	pollCmd.Flags().StringVarP(&pollServer, "server", "s", "http://localhost:8080", "服务器地址")
	pollCmd.Flags().StringVarP(&pollToken, "token", "t", "", "JWT令牌")
	pollCmd.Flags().Int64SliceVarP(&pollJobIDs, "job", "j", nil, "要关注的任务ID，可重复指定；为空时等待全部任务")
	pollCmd.Flags().DurationVar(&pollTimeout, "timeout", 30*time.Minute, "轮询的最长等待时间")
}
