package cmd

import (
	"context"
	"fmt"
	"log"

	"MixMerge/config"
	"MixMerge/storage"

	"github.com/minio/minio-go/v7"
	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioDelete bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO存储桶管理",
	Long:  `查看和管理MinIO存储桶中的文件，支持按前缀列出对象、统计总大小、删除目录等功能。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始连接MinIO服务器...")

		// 加载配置
		cfg := config.Load()
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		// 初始化MinIO客户端
		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("无法连接到MinIO: %v", err)
		}
		fmt.Println("MinIO连接成功！")

		client := storage.GetMinioClient()
		ctx := context.Background()

		if minioDelete {
			// 删除目录
			if minioPrefix == "" {
				log.Fatal("删除操作需要指定目录前缀")
			}
			fmt.Printf("\n删除目录: %s\n", minioPrefix)
			deleted := 0
			for obj := range client.ListObjects(ctx, storage.Bucket(), minio.ListObjectsOptions{Prefix: minioPrefix, Recursive: true}) {
				if obj.Err != nil {
					log.Fatalf("列出对象失败: %v", obj.Err)
				}
				if err := client.RemoveObject(ctx, storage.Bucket(), obj.Key, minio.RemoveObjectOptions{}); err != nil {
					log.Fatalf("删除对象 %s 失败: %v", obj.Key, err)
				}
				deleted++
			}
			fmt.Printf("已删除 %d 个对象\n", deleted)
		} else {
			// 列出文件
			fmt.Printf("\n列出存储桶中的文件 (前缀: %s)...\n", minioPrefix)
			var count int
			var totalSize int64
			for obj := range client.ListObjects(ctx, storage.Bucket(), minio.ListObjectsOptions{Prefix: minioPrefix, Recursive: true}) {
				if obj.Err != nil {
					log.Fatalf("列出对象失败: %v", obj.Err)
				}
				fmt.Printf("  %-60s %10d bytes  %s\n", obj.Key, obj.Size, obj.LastModified.Format("2006-01-02 15:04:05"))
				count++
				totalSize += obj.Size
			}
			fmt.Printf("\n共 %d 个对象，合计 %d bytes\n", count, totalSize)
		}

		fmt.Println("\nMinIO操作完成！")
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	// 添加命令行参数
	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "按前缀过滤文件或指定要操作的目录")
	minioCmd.Flags().BoolVarP(&minioDelete, "delete", "d", false, "删除指定目录及其下的所有文件")

	// 添加使用说明
	minioCmd.Example = `  # 列出所有文件
  mixmerge minio

  # 按前缀过滤文件
  mixmerge minio -p "merged/"

  # 删除目录及其下的所有文件
  mixmerge minio -d -p "merged/"`
}
