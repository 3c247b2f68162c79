package router

const helpText = `📝 使用說明：

📋 待辦事項：
• 新增 [事項] - 新增待辦事項
• 新增 8/9號繳卡費 - 新增有日期的事項
• 刪除 [編號] - 刪除指定待辦事項
• 查詢 或 清單 - 查看所有待辦事項

⏰ 定時提醒：
• 5分鐘後倒垃圾 - 相對時間提醒（1-1440分鐘）
• 1小時30分鐘後開會 - 小時加分鐘
• 30秒後關火 - 秒級提醒（10-3600秒）
• 12:00倒垃圾 - 指定時間提醒
• 取消定時 [編號] - 取消指定提醒
• 定時清單 - 查看所有定時提醒
• 清理定時 - 清理過期提醒

🔄 每月固定事項：
• 每月新增 [事項] - 新增每月固定事項
• 每月新增 5號繳卡費 - 新增每月固定日期事項
• 每月刪除 [編號] - 刪除每月固定事項
• 每月清單 - 查看每月固定事項
• 生成本月 - 將本月固定事項加入待辦清單

⚙️ 設定：
• 早上時間 08:30 - 設定早上提醒時間
• 晚上時間 21:00 - 設定晚上提醒時間
• 查詢時間 - 查看目前時間設定
• 狀態 - 查看目前狀態`

const unknownText = `🤔 我不太明白您的意思

💡 您可以：
• 輸入「5分鐘後倒垃圾」設定定時提醒
• 輸入「新增 事項名稱」建立待辦事項
• 輸入「幫助」查看完整使用說明`
